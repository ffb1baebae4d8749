package fileutil

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CopyFiltered copies every file below src whose extension is in exts into
// dst, preserving the relative layout. Directories are created on demand, so
// subtrees without matching files leave no trace. If dst lies inside src it
// is excluded from the walk. The returned count covers files copied before
// any error.
func CopyFiltered(src, dst string, exts map[string]bool, onError func(path string, err error)) (int, error) {
	if _, err := os.Stat(src); err != nil {
		return 0, errors.Wrapf(err, "stat %s", src)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create %s", dst)
	}

	absDst, _ := filepath.Abs(dst)
	opts := WalkOptions{
		SkipDir: func(p string) bool {
			abs, err := filepath.Abs(p)
			return err == nil && Within(abs, absDst)
		},
		OnError: onError,
	}

	copied := 0
	for e := range Files(src, opts) {
		if !exts[e.Ext()] {
			continue
		}
		target := filepath.Join(dst, e.Rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return copied, errors.Wrapf(err, "create %s", filepath.Dir(target))
		}
		if err := CopyFile(e.Path, target); err != nil {
			return copied, err
		}
		copied++
	}
	return copied, nil
}

// CopyFile copies a single file, replacing target.
func CopyFile(src, target string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "create %s", target)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s", src)
	}
	return errors.Wrapf(out.Close(), "close %s", target)
}
