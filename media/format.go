package media

import "fmt"

// FormatBytes converts bytes to human readable format
func FormatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	const unit = 1024
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	i := 0
	b := float64(bytes)
	for b >= unit && i < len(sizes)-1 {
		b /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", b, sizes[i])
}
