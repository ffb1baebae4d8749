package orchestrator

import (
	"context"
	"os"

	"github.com/stevecastle/wallkit/deps"
	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/onnxtag"
	"github.com/stevecastle/wallkit/toolexec"
)

// Dependency IDs.
const (
	DepExtractTool     = "extract-tool"
	DepWallpaperHelper = "wallpaper-helper"
	DepTaggingModel    = "tagging-model"
	DepORTLibrary      = "onnxruntime"
)

// Dependencies returns the external collaborators with checks bound to the
// current configuration.
func (o *Orchestrator) Dependencies() *deps.Registry {
	r := deps.NewRegistry()
	isMissing := func(err error) bool {
		k := errs.KindOf(err)
		return k == errs.KindNotFound || k == errs.KindInvalid
	}
	r.Register(&deps.Dependency{
		ID:          DepExtractTool,
		Name:        "Unpacking tool",
		Description: "Extracts .pkg wallpaper packages",
		IsMissing:   isMissing,
		Check: func(context.Context) (string, error) {
			return o.resolver.Resolve(toolexec.ExtractTool, o.cfg.ExtractTool)
		},
	})
	r.Register(&deps.Dependency{
		ID:          DepWallpaperHelper,
		Name:        "Wallpaper helper",
		Description: "Renders a file as the desktop background",
		IsMissing:   isMissing,
		Check: func(context.Context) (string, error) {
			return o.resolver.Resolve(toolexec.WallpaperHelper, o.cfg.WallpaperHelper)
		},
	})
	r.Register(&deps.Dependency{
		ID:          DepTaggingModel,
		Name:        "Tagging model",
		Description: onnxtag.ModelFile + " and " + onnxtag.LabelsFile,
		IsMissing:   isMissing,
		Check: func(context.Context) (string, error) {
			if _, _, err := onnxtag.CheckModelDir(o.cfg.Tagger.ModelDir); err != nil {
				return "", err
			}
			return o.cfg.Tagger.ModelDir, nil
		},
	})
	r.Register(&deps.Dependency{
		ID:          DepORTLibrary,
		Name:        "ONNX Runtime",
		Description: "Shared library used for inference",
		IsMissing:   isMissing,
		Check: func(context.Context) (string, error) {
			p := o.cfg.Tagger.ORTSharedLibraryPath
			if p == "" {
				p = os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
			}
			if p == "" {
				return "system library path", nil
			}
			if _, err := os.Stat(p); err != nil {
				return "", errs.NotFound("onnxruntime", p)
			}
			return p, nil
		},
	})
	return r
}
