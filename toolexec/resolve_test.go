package toolexec

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stevecastle/wallkit/errs"
)

type fakeInfo struct{ dir bool }

func (f fakeInfo) Name() string { return "x" }
func (f fakeInfo) Size() int64  { return 1 }
func (f fakeInfo) Mode() fs.FileMode {
	if f.dir {
		return fs.ModeDir
	}
	return 0o755
}
func (f fakeInfo) ModTime() time.Time { return time.Time{} }
func (f fakeInfo) IsDir() bool        { return f.dir }
func (f fakeInfo) Sys() any           { return nil }

func fakeFS(files ...string) func(string) (fs.FileInfo, error) {
	set := map[string]bool{}
	for _, f := range files {
		set[filepath.Clean(filepath.FromSlash(f))] = true
	}
	return func(p string) (fs.FileInfo, error) {
		if set[p] {
			return fakeInfo{}, nil
		}
		return nil, os.ErrNotExist
	}
}

func TestResolveFirstExistingWins(t *testing.T) {
	vars := Vars{Resources: "/app/res", ExeDir: "/app/bin", Cwd: "/work"}
	cases := []struct {
		name  string
		goos  string
		files []string
		want  string
	}{
		{"windows packaged", "windows", []string{"/app/res/win-x64/RePKG.exe", "/work/resources/win-x64/RePKG.exe"}, "/app/res/win-x64/RePKG.exe"},
		{"windows osx-arm64 fallback", "windows", []string{"/app/res/osx-arm64/RePKG.exe"}, "/app/res/osx-arm64/RePKG.exe"},
		{"windows dev layout", "windows", []string{"/work/resources/win-x64/RePKG.exe"}, "/work/resources/win-x64/RePKG.exe"},
		{"darwin bundle", "darwin", []string{"/app/Resources/resources/osx-arm64/RePKG"}, "/app/Resources/resources/osx-arm64/RePKG"},
		{"linux", "linux", []string{"/app/bin/resources/linux-x64/RePKG"}, "/app/bin/resources/linux-x64/RePKG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := &Resolver{Vars: vars, GOOS: tc.goos, Stat: fakeFS(tc.files...)}
			got, err := r.Resolve(ExtractTool, "")
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != filepath.Clean(filepath.FromSlash(tc.want)) {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveNotFoundNamesExpectedPath(t *testing.T) {
	r := &Resolver{Vars: Vars{Resources: "/app/res"}, GOOS: "windows", Stat: fakeFS()}
	_, err := r.Resolve(ExtractTool, "")
	if !errs.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	want := filepath.Clean(filepath.FromSlash("/app/res/win-x64/RePKG.exe"))
	if !strings.Contains(err.Error(), want) {
		t.Fatalf("error %q should name %s", err, want)
	}
}

func TestResolveSkipsTemplatesWithEmptyVars(t *testing.T) {
	r := &Resolver{Vars: Vars{Cwd: "/work"}, GOOS: "linux", Stat: fakeFS()}
	c := r.Candidates(ExtractTool)
	if len(c) != 1 || c[0] != filepath.Clean(filepath.FromSlash("/work/resources/linux-x64/RePKG")) {
		t.Fatalf("candidates = %v", c)
	}
}

func TestResolveOverride(t *testing.T) {
	r := &Resolver{GOOS: "linux", Stat: fakeFS("/opt/repkg")}
	got, err := r.Resolve(ExtractTool, "/opt/repkg")
	if err != nil || got != "/opt/repkg" {
		t.Fatalf("got %q, %v", got, err)
	}
	if _, err := r.Resolve(ExtractTool, "/missing"); !errs.IsNotFound(err) {
		t.Fatalf("missing override err = %v", err)
	}
}

func TestResolveIgnoresDirectories(t *testing.T) {
	r := &Resolver{Vars: Vars{Resources: "/r"}, GOOS: "linux", Stat: func(string) (fs.FileInfo, error) {
		return fakeInfo{dir: true}, nil
	}}
	if _, err := r.Resolve(WallpaperHelper, ""); !errs.IsNotFound(err) {
		t.Fatalf("err = %v", err)
	}
}
