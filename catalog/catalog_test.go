package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/media"
)

func openMem(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func sample() []media.Item {
	return []media.Item{
		{ID: "100", Path: "/lib/100", Title: "Blue Sky", Type: "video", Rating: "Everyone", Packaged: true, PackagePath: "/lib/100/scene.pkg", PreviewPath: "/lib/100/preview.jpg", Collections: []string{"favourites", "calm"}, Tags: []string{"sky", "cloud"}},
		{ID: "200", Path: "/lib/200", Title: "Forest Rain", Type: "scene", Rating: "Mature", PreviewPath: "/lib/200/preview.gif", Collections: []string{"calm"}, Tags: []string{"rain", "tree"}},
		{ID: "300", Path: "/lib/300", Title: "City Night", Type: "video", Rating: "Everyone", PreviewPath: "/lib/300/preview.jpg"},
	}
}

func ids(items []media.Item) string {
	var out []string
	for _, it := range items {
		out = append(out, it.ID)
	}
	return strings.Join(out, ",")
}

func TestSearch(t *testing.T) {
	c := openMem(t)
	ctx := context.Background()
	if err := c.Sync(ctx, "/lib", sample()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	cases := []struct {
		query string
		want  string
	}{
		{"", "100,300,200"},
		{"type:video", "100,300"},
		{`title:"blue *"`, "100"},
		{"collection:calm", "100,200"},
		{"collection:calm AND NOT rating:Mature", "100"},
		{"tag:rain OR name:300", "300,200"},
		{"packaged:true", "100"},
		{"packaged:false", "300,200"},
		{"forest", "200"},
		{"tag:sk*", "100"},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			items, _, err := c.Search(ctx, tc.query, 10, 0)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if got := ids(items); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSearchAttachesLabelsAndPages(t *testing.T) {
	c := openMem(t)
	ctx := context.Background()
	c.Sync(ctx, "/lib", sample())

	items, more, err := c.Search(ctx, "", 1, 0)
	if err != nil || len(items) != 1 || !more {
		t.Fatalf("page 1 = %v more=%v err=%v", ids(items), more, err)
	}
	it := items[0]
	if it.ID != "100" || !it.Packaged || it.PackagePath != "/lib/100/scene.pkg" {
		t.Fatalf("item = %+v", it)
	}
	if strings.Join(it.Tags, ",") != "sky,cloud" {
		t.Fatalf("tags = %v, want list order", it.Tags)
	}
	sort.Strings(it.Collections)
	if strings.Join(it.Collections, ",") != "calm,favourites" {
		t.Fatalf("collections = %v", it.Collections)
	}

	items, more, _ = c.Search(ctx, "", 2, 2)
	if ids(items) != "200" || more {
		t.Fatalf("last page = %v more=%v", ids(items), more)
	}
}

func TestSearchRejectsUnknownField(t *testing.T) {
	c := openMem(t)
	_, _, err := c.Search(context.Background(), "size:>10", 10, 0)
	if errs.KindOf(err) != errs.KindInvalid {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncReplacesRoot(t *testing.T) {
	c := openMem(t)
	ctx := context.Background()
	c.Sync(ctx, "/lib", sample())
	c.Sync(ctx, "/other", []media.Item{{ID: "x", Path: "/other/x", Title: "X", Type: "video", Rating: "Everyone", PreviewPath: "/other/x/preview.jpg", Collections: []string{"calm"}}})

	if err := c.Sync(ctx, "/lib", sample()[:1]); err != nil {
		t.Fatal(err)
	}
	items, _, _ := c.Search(ctx, "", 10, 0)
	if got := ids(items); got != "100,x" {
		t.Fatalf("items = %s", got)
	}
	counts, err := c.Collections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 2 || counts[0] != (CollectionCount{"calm", 2}) || counts[1] != (CollectionCount{"favourites", 1}) {
		t.Fatalf("counts = %+v", counts)
	}
}

func TestRefreshRereadsSidecar(t *testing.T) {
	c := openMem(t)
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, "42")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "preview.jpg"), []byte("x"), 0o644)
	os.WriteFile(filepath.Join(dir, "project.json"), []byte(`{"title":"Dunes","collections":["warm"]}`), 0o644)

	if err := c.Refresh(ctx, root, []string{dir}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	items, _, _ := c.Search(ctx, "collection:warm", 10, 0)
	if len(items) != 1 || items[0].Title != "Dunes" {
		t.Fatalf("items = %+v", items)
	}

	os.Remove(filepath.Join(dir, "preview.jpg"))
	c.Refresh(ctx, root, []string{dir})
	items, _, _ = c.Search(ctx, "", 10, 0)
	if len(items) != 0 {
		t.Fatalf("folder without preview should be dropped, got %v", ids(items))
	}
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "catalog.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db not created: %v", err)
	}
}

func TestParseQueryLogic(t *testing.T) {
	q, err := ParseQuery(`type:video OR NOT collection:"my picks" tag:sky`)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Conditions) != 3 {
		t.Fatalf("conditions = %+v", q.Conditions)
	}
	c := q.Conditions[1]
	if c.Logic != "OR" || !c.Negate || c.Value != "my picks" || c.Field != "collection" {
		t.Fatalf("second = %+v", c)
	}
	if q.Conditions[2].Logic != "AND" {
		t.Fatalf("implicit logic = %q", q.Conditions[2].Logic)
	}
	where, args := buildWhereClause(q)
	if !strings.HasPrefix(where, "WHERE i.type = ? OR NOT (EXISTS") || len(args) != 3 {
		t.Fatalf("where = %s args = %v", where, args)
	}
}
