package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/collections"
	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/media"
	"github.com/stevecastle/wallkit/orchestrator"
	"github.com/stevecastle/wallkit/stream"
)

// api serves the JSON and SSE interface of "wallkit serve". Batches it
// starts live on ctx, not on the request that started them.
type api struct {
	ctx    context.Context
	o      *orchestrator.Orchestrator
	hub    *stream.Hub
	logger zerolog.Logger
}

func newAPI(ctx context.Context, o *orchestrator.Orchestrator, hub *stream.Hub, logger zerolog.Logger) http.Handler {
	a := &api{ctx: ctx, o: o, hub: hub, logger: logger.With().Str("component", "api").Logger()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.health)
	mux.Handle("GET /stream", hub)
	mux.HandleFunc("GET /api/items", a.items)
	mux.HandleFunc("POST /api/extract", a.startExtract)
	mux.HandleFunc("POST /api/extract/stop", a.stopExtract)
	mux.HandleFunc("POST /api/tag", a.startTag)
	mux.HandleFunc("POST /api/tag/stop", a.stopTag)
	mux.HandleFunc("GET /api/collections", a.listCollections)
	mux.HandleFunc("POST /api/collections/{action}", a.mutateCollection)
	mux.HandleFunc("GET /api/assets", a.assets)
	mux.HandleFunc("POST /api/wallpaper", a.setWallpaper)
	mux.HandleFunc("POST /api/wallpaper/stop", a.stopWallpaper)
	mux.HandleFunc("GET /api/search", a.search)
	mux.HandleFunc("GET /api/deps", a.deps)
	return a.withCORS(mux)
}

func (a *api) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Dur("took", time.Since(start)).Msg("request")
	})
}

func readJSONBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Invalid("api", "bad json: "+err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *api) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindInvalid, errs.KindMalformed:
		status = http.StatusBadRequest
	case errs.KindAlreadyRunning:
		status = http.StatusConflict
	case errs.KindProcessFailure:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.logger.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": errs.KindOf(err).String()})
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"clients":    a.hub.Clients(),
		"extracting": a.o.ExtractRunning(),
		"tagging":    a.o.TaggingRunning(),
	})
}

func (a *api) items(w http.ResponseWriter, r *http.Request) {
	items, err := a.o.Scan(r.Context(), r.URL.Query().Get("root"), nil)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type extractBody struct {
	Root      string   `json:"root"`
	IDs       []string `json:"ids"`
	OutputDir string   `json:"outputDir"`
	Flatten   bool     `json:"flatten"`
}

func (a *api) startExtract(w http.ResponseWriter, r *http.Request) {
	var body extractBody
	if err := readJSONBody(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	if a.o.ExtractRunning() {
		a.fail(w, errs.ErrAlreadyRunning)
		return
	}
	items, err := a.o.Select(r.Context(), body.Root, body.IDs)
	if err != nil {
		a.fail(w, err)
		return
	}
	batch, err := a.o.StartExtract(a.ctx, orchestrator.ExtractRequest{
		Items:     items,
		OutputDir: body.OutputDir,
		Flatten:   body.Flatten,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"batchId": batch.ID(), "total": len(items)})
}

func (a *api) stopExtract(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": a.o.StopExtract()})
}

type tagBody struct {
	Root      string   `json:"root"`
	IDs       []string `json:"ids"`
	Paths     []string `json:"paths"`
	ModelDir  string   `json:"modelDir"`
	Threshold float64  `json:"threshold"`
}

func (a *api) startTag(w http.ResponseWriter, r *http.Request) {
	var body tagBody
	if err := readJSONBody(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	if a.o.TaggingRunning() {
		a.fail(w, errs.ErrAlreadyRunning)
		return
	}
	paths := body.Paths
	if len(paths) == 0 {
		items, err := a.o.Select(r.Context(), body.Root, body.IDs)
		if err != nil {
			a.fail(w, err)
			return
		}
		for _, it := range items {
			paths = append(paths, it.Path)
		}
	}
	batch, err := a.o.StartTagging(a.ctx, orchestrator.TagRequest{
		Paths:     paths,
		ModelDir:  body.ModelDir,
		Threshold: body.Threshold,
	})
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"batchId": batch.ID(), "total": len(paths)})
}

func (a *api) stopTag(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": a.o.StopTagging()})
}

func (a *api) listCollections(w http.ResponseWriter, r *http.Request) {
	counts, err := a.o.Collections(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

type collectionBody struct {
	Label string   `json:"label"`
	Paths []string `json:"paths"`
	Root  string   `json:"root"`
}

type collectionResult struct {
	Path    string `json:"path"`
	Changed bool   `json:"changed"`
	Error   string `json:"error,omitempty"`
}

func (a *api) mutateCollection(w http.ResponseWriter, r *http.Request) {
	var body collectionBody
	if err := readJSONBody(r, &body); err != nil {
		a.fail(w, err)
		return
	}

	var (
		rs  []collections.Result
		err error
	)
	switch r.PathValue("action") {
	case "add":
		rs, err = a.o.AddToCollection(body.Paths, body.Label)
	case "remove":
		rs, err = a.o.RemoveFromCollection(body.Paths, body.Label)
	case "delete":
		rs, err = a.o.DeleteCollection(r.Context(), body.Root, body.Label)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.fail(w, err)
		return
	}
	results := make([]collectionResult, 0, len(rs))
	for _, res := range rs {
		results = append(results, collectionResult{Path: res.Path, Changed: res.Changed, Error: res.Error()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (a *api) assets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir := q.Get("dir")
	if dir == "" {
		a.fail(w, errs.Invalid("api.assets", "dir is required"))
		return
	}
	n := 0
	if s := q.Get("n"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			a.fail(w, errs.Invalid("api.assets", "n must be a number"))
			return
		}
		n = v
	}
	assets, err := a.o.LargestAssets(dir, n)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assets)
}

type wallpaperBody struct {
	File string `json:"file"`
	Mute bool   `json:"mute"`
}

func (a *api) setWallpaper(w http.ResponseWriter, r *http.Request) {
	var body wallpaperBody
	if err := readJSONBody(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	if body.File == "" {
		a.fail(w, errs.Invalid("api.wallpaper", "file is required"))
		return
	}
	if err := a.o.SetWallpaper(r.Context(), body.File, body.Mute); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": body.File})
}

func (a *api) stopWallpaper(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": a.o.StopWallpaper()})
}

func (a *api) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	items, more, err := a.o.Search(r.Context(), q.Get("q"), limit, offset)
	if err != nil {
		a.fail(w, err)
		return
	}
	if items == nil {
		items = []media.Item{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "hasMore": more})
}

func (a *api) deps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.o.Dependencies().CheckAll(r.Context()))
}
