// Package toolexec locates the bundled helper executables and starts them
// so that cancelling the context kills the whole process tree.
package toolexec

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/stevecastle/wallkit/errs"
)

// Template placeholders.
const (
	VarResources = "{resources}"
	VarExeDir    = "{exedir}"
	VarCwd       = "{cwd}"
)

// Templates lists candidate paths per GOOS, most preferred first. The
// "default" entry applies to any GOOS without its own list.
type Templates map[string][]string

// ExtractTool holds the candidate locations of the unpacking tool.
var ExtractTool = Templates{
	"windows": {
		"{resources}/win-x64/RePKG.exe",
		"{resources}/osx-arm64/RePKG.exe",
		"{exedir}/resources/win-x64/RePKG.exe",
		"{cwd}/resources/win-x64/RePKG.exe",
	},
	"darwin": {
		"{resources}/osx-arm64/RePKG",
		"{exedir}/../Resources/resources/osx-arm64/RePKG",
		"{exedir}/resources/osx-arm64/RePKG",
		"{cwd}/resources/osx-arm64/RePKG",
	},
	"default": {
		"{resources}/linux-x64/RePKG",
		"{exedir}/resources/linux-x64/RePKG",
		"{cwd}/resources/linux-x64/RePKG",
	},
}

// WallpaperHelper holds the candidate locations of the desktop helper.
var WallpaperHelper = Templates{
	"windows": {
		"{resources}/win-x64/WallpaperPlayer.exe",
		"{exedir}/resources/win-x64/WallpaperPlayer.exe",
		"{cwd}/resources/win-x64/WallpaperPlayer.exe",
	},
	"darwin": {
		"{resources}/osx-arm64/WallpaperPlayer",
		"{exedir}/../Resources/resources/osx-arm64/WallpaperPlayer",
		"{cwd}/resources/osx-arm64/WallpaperPlayer",
	},
	"default": {
		"{resources}/linux-x64/WallpaperPlayer",
		"{exedir}/resources/linux-x64/WallpaperPlayer",
		"{cwd}/resources/linux-x64/WallpaperPlayer",
	},
}

// For returns the list for goos.
func (t Templates) For(goos string) []string {
	if l, ok := t[goos]; ok {
		return l
	}
	return t["default"]
}

// Vars are the values substituted into templates. Empty values disable
// every template that uses them.
type Vars struct {
	Resources string
	ExeDir    string
	Cwd       string
}

// DefaultVars derives the variables from the running process. An empty
// resourcesDir means "resources next to the executable".
func DefaultVars(resourcesDir string) Vars {
	var v Vars
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		v.ExeDir = filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		v.Cwd = wd
	}
	v.Resources = resourcesDir
	if v.Resources == "" && v.ExeDir != "" {
		v.Resources = filepath.Join(v.ExeDir, "resources")
	}
	return v
}

// Resolver evaluates candidate templates in order; the first existing
// regular file wins.
type Resolver struct {
	Vars Vars
	GOOS string
	Stat func(string) (fs.FileInfo, error)
}

// NewResolver returns a Resolver for the running platform.
func NewResolver(resourcesDir string) *Resolver {
	return &Resolver{Vars: DefaultVars(resourcesDir), GOOS: runtime.GOOS, Stat: os.Stat}
}

// Candidates expands the templates for the resolver's platform.
func (r *Resolver) Candidates(t Templates) []string {
	var out []string
	for _, tmpl := range t.For(r.goos()) {
		p, ok := r.expand(tmpl)
		if ok {
			out = append(out, p)
		}
	}
	return out
}

// Resolve returns the executable for t. A non-empty override is used as is
// and must exist. When nothing is found the error names the first expected
// path.
func (r *Resolver) Resolve(t Templates, override string) (string, error) {
	if override != "" {
		if r.isFile(override) {
			return override, nil
		}
		return "", errs.NotFound("toolexec.Resolve", override)
	}
	candidates := r.Candidates(t)
	for _, p := range candidates {
		if r.isFile(p) {
			return p, nil
		}
	}
	if len(candidates) == 0 {
		return "", &errs.Error{Kind: errs.KindNotFound, Op: "toolexec.Resolve", Err: errors.New("no candidate locations for " + r.goos())}
	}
	e := &errs.Error{Kind: errs.KindNotFound, Op: "toolexec.Resolve", Path: candidates[0]}
	if len(candidates) > 1 {
		e.Err = errors.Errorf("also looked in %s", strings.Join(candidates[1:], ", "))
	}
	return "", e
}

func (r *Resolver) goos() string {
	if r.GOOS == "" {
		return runtime.GOOS
	}
	return r.GOOS
}

func (r *Resolver) isFile(p string) bool {
	stat := r.Stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(p)
	return err == nil && info.Mode().IsRegular()
}

func (r *Resolver) expand(tmpl string) (string, bool) {
	pairs := []struct{ key, val string }{
		{VarResources, r.Vars.Resources},
		{VarExeDir, r.Vars.ExeDir},
		{VarCwd, r.Vars.Cwd},
	}
	out := tmpl
	for _, p := range pairs {
		if !strings.Contains(out, p.key) {
			continue
		}
		if p.val == "" {
			return "", false
		}
		out = strings.ReplaceAll(out, p.key, filepath.ToSlash(p.val))
	}
	return filepath.Clean(filepath.FromSlash(out)), true
}
