package media

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/fileutil"
)

// Asset kinds.
const (
	KindImage = "image"
	KindVideo = "video"
)

// AssetExts maps every renderable extension to its kind.
var AssetExts = map[string]string{
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".bmp":  KindImage,
	".webp": KindImage,
	".mp4":  KindVideo,
}

// AssetCandidate is a renderable file found in an extracted directory.
type AssetCandidate struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Ext  string `json:"ext"`
	Kind string `json:"kind"`
}

// LargestAssets returns up to n renderable files below dir, largest first.
// Files of equal size keep the order in which the walk found them. n <= 0
// returns every candidate. Unreadable subdirectories are logged and skipped.
func LargestAssets(dir string, n int, logger zerolog.Logger) ([]AssetCandidate, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NotFound("media.LargestAssets", dir)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, errs.Invalid("media.LargestAssets", dir+" is not a directory")
	}

	onErr := func(p string, err error) {
		logger.Warn().Err(err).Str("path", p).Msg("skipping unreadable directory")
	}

	var out []AssetCandidate
	for e := range fileutil.Files(dir, fileutil.WalkOptions{OnError: onErr}) {
		ext := e.Ext()
		kind, ok := AssetExts[ext]
		if !ok {
			continue
		}
		out = append(out, AssetCandidate{
			Path: e.Path,
			Name: filepath.Base(e.Path),
			Size: e.Size,
			Ext:  strings.TrimPrefix(ext, "."),
			Kind: kind,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Size > out[j].Size })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
