package fileutil

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Entry is a regular file found by Files.
type Entry struct {
	Path string // absolute or root-joined path
	Rel  string // path relative to the walk root
	Size int64
}

// Ext returns the lower-cased extension including the dot.
func (e Entry) Ext() string {
	return strings.ToLower(filepath.Ext(e.Path))
}

// WalkOptions tune Files.
type WalkOptions struct {
	// SkipDir prunes a directory (and everything below it) when it returns true.
	SkipDir func(path string) bool
	// OnError is told about every directory that could not be read. The walk
	// always continues with the remaining directories.
	OnError func(path string, err error)
}

// Files walks root with an explicit work stack and yields every regular file
// it can reach. Unreadable directories are reported through OnError and
// skipped; symlinked directories are not followed. Within a directory, files
// are yielded in name order before any subdirectory is visited.
func Files(root string, opts WalkOptions) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		stack := []string{root}
		for len(stack) > 0 {
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := os.ReadDir(dir)
			if err != nil {
				if opts.OnError != nil {
					opts.OnError(dir, err)
				}
				continue
			}

			var subdirs []string
			for _, e := range entries {
				p := filepath.Join(dir, e.Name())
				if e.IsDir() {
					if opts.SkipDir != nil && opts.SkipDir(p) {
						continue
					}
					subdirs = append(subdirs, p)
					continue
				}
				info, err := fileInfo(p, e)
				if err != nil {
					if opts.OnError != nil {
						opts.OnError(p, err)
					}
					continue
				}
				if !info.Mode().IsRegular() {
					continue
				}
				rel, err := filepath.Rel(root, p)
				if err != nil {
					rel = e.Name()
				}
				if !yield(Entry{Path: p, Rel: rel, Size: info.Size()}) {
					return
				}
			}

			// Reverse so the first subdirectory is popped first.
			slices.Reverse(subdirs)
			stack = append(stack, subdirs...)
		}
	}
}

func fileInfo(p string, e fs.DirEntry) (fs.FileInfo, error) {
	if e.Type()&fs.ModeSymlink != 0 {
		return os.Stat(p)
	}
	return e.Info()
}

// Within reports whether path is dir itself or lies below it.
func Within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
