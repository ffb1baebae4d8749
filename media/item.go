package media

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/stevecastle/wallkit/sidecar"
)

// Defaults for sidecar fields that are absent.
const (
	DefaultType   = "unknown"
	DefaultRating = "Everyone"
)

// PreviewNames are checked in order; the first existing file is the preview.
// The png name is consulted only when neither of the others exists.
var PreviewNames = []string{"preview.jpg", "preview.gif", "preview.png"}

// PackageExt is the extension of the proprietary package file.
const PackageExt = ".pkg"

// Item is a discovered wallpaper folder.
type Item struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	Type        string   `json:"type"`
	Rating      string   `json:"rating"`
	Description string   `json:"description,omitempty"`
	Packaged    bool     `json:"packaged"`
	PackagePath string   `json:"packagePath,omitempty"`
	PreviewPath string   `json:"previewPath"`
	Collections []string `json:"collections"`
	Tags        []string `json:"tags,omitempty"`
}

// FindPreview returns the first recognized preview file in dir. ok is false
// when the folder has none. Errors other than "does not exist" are returned.
func FindPreview(dir string) (path string, ok bool, err error) {
	for _, name := range PreviewNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil {
			if info.Mode().IsRegular() {
				return p, true, nil
			}
			continue
		}
		if !os.IsNotExist(err) {
			return "", false, errors.Wrapf(err, "stat %s", p)
		}
	}
	return "", false, nil
}

// FindPackage returns the first *.pkg file (case-insensitive) in dir.
func FindPackage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", dir)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), PackageExt) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", nil
}

// LoadItem resolves the folder at dir into an Item. ok is false when the
// folder has no recognized preview. A malformed sidecar is not an error: the
// item falls back to defaults and sidecarErr reports what was wrong.
func LoadItem(dir string) (item Item, ok bool, sidecarErr error, err error) {
	preview, ok, err := FindPreview(dir)
	if err != nil || !ok {
		return Item{}, false, nil, err
	}
	pkg, err := FindPackage(dir)
	if err != nil {
		return Item{}, false, nil, err
	}

	doc, sidecarErr := sidecar.Read(dir)
	id := filepath.Base(dir)
	item = Item{
		ID:          id,
		Path:        dir,
		Title:       orDefault(doc.String(sidecar.KeyTitle), id),
		Type:        orDefault(doc.String(sidecar.KeyType), DefaultType),
		Rating:      orDefault(doc.String(sidecar.KeyRating), DefaultRating),
		Description: doc.String(sidecar.KeyDescription),
		Packaged:    pkg != "",
		PackagePath: pkg,
		PreviewPath: preview,
		Collections: uniq(doc.Strings(sidecar.KeyCollections)),
		Tags:        doc.Strings(sidecar.KeyTags),
	}
	return item, true, sidecarErr, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func uniq(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
