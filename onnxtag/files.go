package onnxtag

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/stevecastle/wallkit/errs"
)

// Files a model directory must contain.
const (
	ModelFile  = "model.onnx"
	LabelsFile = "selected_tags.csv"
)

// Options configures Load.
type Options struct {
	ModelDir string
	// SharedLibraryPath is the onnxruntime library (.dll/.so/.dylib). When
	// empty, ONNXRUNTIME_SHARED_LIBRARY_PATH is respected.
	SharedLibraryPath string
}

// CheckModelDir verifies that both required files exist before either is
// loaded, and names the first one that is missing.
func CheckModelDir(dir string) (modelPath, labelsPath string, err error) {
	if dir == "" {
		return "", "", errs.Invalid("onnxtag.Load", "model directory is not configured")
	}
	modelPath = filepath.Join(dir, ModelFile)
	labelsPath = filepath.Join(dir, LabelsFile)
	for _, p := range []string{modelPath, labelsPath} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return "", "", errs.NotFound("onnxtag.Load", p)
			}
			return "", "", errors.Wrapf(err, "stat %s", p)
		}
		if info.IsDir() {
			return "", "", errs.NotFound("onnxtag.Load", p)
		}
	}
	return modelPath, labelsPath, nil
}
