package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/catalog"
	"github.com/stevecastle/wallkit/orchestrator"
	"github.com/stevecastle/wallkit/sidecar"
	"github.com/stevecastle/wallkit/stream"
	"github.com/stevecastle/wallkit/toolexec"
)

type apiFixture struct {
	root string
	o    *orchestrator.Orchestrator
	srv  *httptest.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	root := t.TempDir()
	for id, body := range map[string]string{
		"1": `{"title":"Aurora","type":"video","collections":["night"]}`,
		"2": `{"title":"Harbor","type":"scene"}`,
	} {
		dir := filepath.Join(root, id)
		os.MkdirAll(dir, 0o755)
		os.WriteFile(filepath.Join(dir, "preview.jpg"), []byte("jpg"), 0o644)
		os.WriteFile(filepath.Join(dir, sidecar.FileName), []byte(body), 0o644)
	}

	cat, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })

	cfg := appconfig.Default()
	cfg.LibraryRoot = root
	hub := stream.NewHub(zerolog.Nop())
	o := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Catalog:  cat,
		Hub:      hub,
		Resolver: &toolexec.Resolver{GOOS: "linux", Vars: toolexec.Vars{Resources: filepath.Join(root, "none")}, Stat: os.Stat},
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(o.Close)

	srv := httptest.NewServer(newAPI(context.Background(), o, hub, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return &apiFixture{root: root, o: o, srv: srv}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	var got map[string]any
	if code := f.do(t, "GET", "/health", nil, &got); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got["status"] != "healthy" || got["extracting"] != false || got["tagging"] != false {
		t.Fatalf("health = %v", got)
	}
}

func TestItemsAndSearch(t *testing.T) {
	f := newAPIFixture(t)

	var items []map[string]any
	if code := f.do(t, "GET", "/api/items", nil, &items); code != http.StatusOK {
		t.Fatalf("items status = %d", code)
	}
	if len(items) != 2 {
		t.Fatalf("items = %v", items)
	}

	var res struct {
		Items   []map[string]any `json:"items"`
		HasMore bool             `json:"hasMore"`
	}
	if code := f.do(t, "GET", "/api/search?q=type:video", nil, &res); code != http.StatusOK {
		t.Fatalf("search status = %d", code)
	}
	if len(res.Items) != 1 || res.Items[0]["title"] != "Aurora" || res.HasMore {
		t.Fatalf("search = %+v", res)
	}

	var e map[string]string
	if code := f.do(t, "GET", "/api/search?q=colour:red", nil, &e); code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", code)
	}
	if e["kind"] != "invalid" {
		t.Fatalf("error body = %v", e)
	}
}

func TestItemsMissingRoot(t *testing.T) {
	f := newAPIFixture(t)
	var items []map[string]any
	if code := f.do(t, "GET", "/api/items?root="+filepath.Join(f.root, "gone"), nil, &items); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(items) != 0 {
		t.Fatalf("items = %v", items)
	}
}

func TestCollectionEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, "GET", "/api/items", nil, nil)

	var res struct {
		Results []collectionResult `json:"results"`
	}
	body := collectionBody{Label: "night", Paths: []string{filepath.Join(f.root, "2")}}
	if code := f.do(t, "POST", "/api/collections/add", body, &res); code != http.StatusOK {
		t.Fatalf("add status = %d", code)
	}
	if len(res.Results) != 1 || !res.Results[0].Changed || res.Results[0].Error != "" {
		t.Fatalf("add results = %+v", res.Results)
	}

	var counts []catalog.CollectionCount
	f.do(t, "GET", "/api/collections", nil, &counts)
	if len(counts) != 1 || counts[0].Label != "night" || counts[0].Count != 2 {
		t.Fatalf("counts = %+v", counts)
	}

	if code := f.do(t, "POST", "/api/collections/delete", collectionBody{Label: "night"}, &res); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	doc, err := sidecar.Read(filepath.Join(f.root, "1"))
	if err != nil {
		t.Fatal(err)
	}
	if got := doc.Strings("collections"); len(got) != 0 {
		t.Fatalf("collections after delete = %v", got)
	}
	if doc.String("title") != "Aurora" {
		t.Fatal("delete dropped sibling keys")
	}

	if code := f.do(t, "POST", "/api/collections/rename", body, nil); code != http.StatusNotFound {
		t.Fatalf("unknown action status = %d", code)
	}
	if code := f.do(t, "POST", "/api/collections/add", collectionBody{Paths: body.Paths}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty label status = %d", code)
	}
}

func TestExtractEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	out := t.TempDir()

	if code := f.do(t, "POST", "/api/extract", "{bad", nil); code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", code)
	}
	if code := f.do(t, "POST", "/api/extract", extractBody{IDs: []string{"9"}, OutputDir: out}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown id status = %d", code)
	}

	var started map[string]any
	if code := f.do(t, "POST", "/api/extract", extractBody{IDs: []string{"1"}, OutputDir: out, Flatten: true}, &started); code != http.StatusAccepted {
		t.Fatalf("extract status = %d", code)
	}
	if started["batchId"] == "" || started["total"] != float64(1) {
		t.Fatalf("start body = %v", started)
	}

	deadline := time.Now().Add(5 * time.Second)
	for f.o.ExtractRunning() {
		if time.Now().After(deadline) {
			t.Fatal("batch never finished")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(filepath.Join(out, "preview.jpg")); err != nil {
		t.Fatalf("preview not copied: %v", err)
	}

	var stopped map[string]bool
	f.do(t, "POST", "/api/extract/stop", nil, &stopped)
	if stopped["stopped"] {
		t.Fatal("nothing should be running")
	}
}

func TestWallpaperAndAssetsErrors(t *testing.T) {
	f := newAPIFixture(t)
	if code := f.do(t, "POST", "/api/wallpaper", wallpaperBody{File: filepath.Join(f.root, "missing.mp4")}, nil); code != http.StatusNotFound {
		t.Fatalf("missing file status = %d", code)
	}
	if code := f.do(t, "POST", "/api/wallpaper", wallpaperBody{}, nil); code != http.StatusBadRequest {
		t.Fatalf("empty file status = %d", code)
	}
	if code := f.do(t, "GET", "/api/assets", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("no dir status = %d", code)
	}
	if code := f.do(t, "GET", "/api/assets?dir="+f.root+"&n=x", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad n status = %d", code)
	}

	var assets []map[string]any
	if code := f.do(t, "GET", "/api/assets?dir="+filepath.Join(f.root, "1")+"&n=1", nil, &assets); code != http.StatusOK {
		t.Fatalf("assets status = %d", code)
	}
	if len(assets) > 1 {
		t.Fatalf("assets = %v", assets)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newAPIFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/extract", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("preflight = %d %v", resp.StatusCode, resp.Header)
	}
}
