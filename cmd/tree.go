package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disiqueira/gotree/v3"

	"github.com/stevecastle/wallkit/media"
)

// fileTree renders paths relative to a root as nested directories.
type fileTree struct {
	tree gotree.Tree
	dirs map[string]gotree.Tree
}

func newFileTree(rootLabel string) fileTree {
	return fileTree{tree: gotree.New(rootLabel), dirs: make(map[string]gotree.Tree)}
}

func (t fileTree) dir(rel string) gotree.Tree {
	if rel == "." || rel == "" {
		return t.tree
	}
	d := t.dirs[rel]
	if d == nil {
		d = t.dir(filepath.Dir(rel)).Add(filepath.Base(rel))
		t.dirs[rel] = d
	}
	return d
}

func (t fileTree) insert(rel, label string) {
	t.dir(filepath.Dir(rel)).Add(label)
}

func (t fileTree) render() string { return t.tree.Print() }

func itemTree(root string, items []media.Item) string {
	tree := gotree.New(root)
	for _, it := range items {
		label := fmt.Sprintf("%s  %s [%s, %s]", it.ID, it.Title, it.Type, it.Rating)
		if it.Packaged {
			label += " (packaged)"
		}
		node := tree.Add(label)
		node.Add("preview: " + filepath.Base(it.PreviewPath))
		if len(it.Collections) > 0 {
			node.Add("collections: " + strings.Join(it.Collections, ", "))
		}
		if len(it.Tags) > 0 {
			node.Add("tags: " + strings.Join(it.Tags, ", "))
		}
	}
	return tree.Print()
}

func assetTree(dir string, assets []media.AssetCandidate) string {
	t := newFileTree(dir)
	for i, a := range assets {
		rel, err := filepath.Rel(dir, a.Path)
		if err != nil {
			rel = a.Name
		}
		t.insert(rel, fmt.Sprintf("#%d %s (%s, %s)", i+1, filepath.Base(rel), a.Kind, media.FormatBytes(a.Size)))
	}
	return t.render()
}
