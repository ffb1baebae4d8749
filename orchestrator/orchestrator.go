// Package orchestrator composes scanning, extraction, tagging, collections
// and the wallpaper helper. It owns the single-flight slots: one extraction
// batch and one tagging batch may run at a time.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/catalog"
	"github.com/stevecastle/wallkit/collections"
	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/media"
	"github.com/stevecastle/wallkit/runners"
	"github.com/stevecastle/wallkit/stream"
	"github.com/stevecastle/wallkit/tasks"
	"github.com/stevecastle/wallkit/toolexec"
	"github.com/stevecastle/wallkit/wallpaper"
)

// Events broadcast besides the job events.
const (
	EventItem               = "item"
	EventScanFinished       = "scan.finished"
	EventCollectionsChanged = "collections.changed"
	EventWallpaperChanged   = "wallpaper.changed"
)

// Options configure New. Catalog and Hub are optional.
type Options struct {
	Config   appconfig.Config
	Catalog  *catalog.Catalog
	Hub      *stream.Hub
	Resolver *toolexec.Resolver
	Logger   zerolog.Logger
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	cfg      appconfig.Config
	catalog  *catalog.Catalog
	hub      *stream.Hub
	resolver *toolexec.Resolver
	logger   zerolog.Logger

	collections *collections.Store
	extract     *runners.Runner
	tag         *runners.Runner

	mu     sync.Mutex
	player *wallpaper.Player
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger.With().Str("component", "orchestrator").Logger()
	resolver := opts.Resolver
	if resolver == nil {
		resolver = toolexec.NewResolver(opts.Config.ResourcesDir)
	}
	return &Orchestrator{
		cfg:         opts.Config,
		catalog:     opts.Catalog,
		hub:         opts.Hub,
		resolver:    resolver,
		logger:      logger,
		collections: collections.New(opts.Logger),
		extract:     runners.New("extract", opts.Logger),
		tag:         runners.New("tag", opts.Logger),
	}
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() appconfig.Config { return o.cfg }

func (o *Orchestrator) broadcast(eventType string, v any) {
	if o.hub != nil {
		o.hub.Broadcast(eventType, v)
	}
}

func (o *Orchestrator) root(root string) (string, error) {
	if root == "" {
		root = o.cfg.LibraryRoot
	}
	if strings.TrimSpace(root) == "" {
		return "", errs.Invalid("orchestrator", "no library root given and none configured")
	}
	return filepath.Clean(root), nil
}

// Scan discovers the items under root (the configured library root when
// empty). onItem, when set, sees every item as soon as it is resolved. The
// catalog is rebuilt for root afterwards.
func (o *Orchestrator) Scan(ctx context.Context, root string, onItem func(media.Item)) ([]media.Item, error) {
	root, err := o.root(root)
	if err != nil {
		return nil, err
	}
	items, err := media.Scan(ctx, root, media.ScanOptions{
		Logger: o.logger,
		OnItem: func(it media.Item) {
			if onItem != nil {
				onItem(it)
			}
			o.broadcast(EventItem, it)
		},
	})
	if err != nil {
		return items, err
	}
	if o.catalog != nil {
		if err := o.catalog.Sync(ctx, root, items); err != nil {
			o.logger.Warn().Err(err).Str("root", root).Msg("catalog sync failed")
		}
	}
	o.broadcast(EventScanFinished, map[string]any{"root": root, "count": len(items)})
	return items, nil
}

// Select scans root and picks the items named by ids, in ids order. No ids
// selects everything. Unknown ids are an error naming them.
func (o *Orchestrator) Select(ctx context.Context, root string, ids []string) ([]media.Item, error) {
	items, err := o.Scan(ctx, root, nil)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return items, nil
	}
	selected, unknown := media.Select(items, ids)
	if len(unknown) > 0 {
		return nil, errs.Invalid("orchestrator.Select", "no such item: "+strings.Join(unknown, ", "))
	}
	return selected, nil
}

// Batch is a running extraction or tagging batch.
type Batch struct {
	run     *runners.Run
	relayed chan struct{}
}

// ID returns the batch id.
func (b *Batch) ID() string { return b.run.ID }

// Cancel stops the batch.
func (b *Batch) Cancel() { b.run.Cancel() }

// Jobs returns a snapshot of the batch's jobs.
func (b *Batch) Jobs() []jobqueue.Job { return b.run.Queue.Jobs() }

// Done is closed once every job has settled and every event was delivered.
func (b *Batch) Done() <-chan struct{} { return b.relayed }

// Wait blocks until the batch is over and all events were delivered.
func (b *Batch) Wait() jobqueue.Summary {
	sum := b.run.Wait()
	<-b.relayed
	return sum
}

// relay forwards the batch's events to onEvent and the hub, then runs after.
func (o *Orchestrator) relay(run *runners.Run, onEvent func(jobqueue.Event), after func()) *Batch {
	b := &Batch{run: run, relayed: make(chan struct{})}
	go func() {
		defer close(b.relayed)
		for e := range run.Events() {
			if onEvent != nil {
				onEvent(e)
			}
			o.broadcast(e.Type, e)
		}
		if after != nil {
			after()
		}
	}()
	return b
}

// ExtractRequest describes an extraction batch. Zero OutputDir and Options
// fall back to the configuration.
type ExtractRequest struct {
	Items     []media.Item
	OutputDir string
	Flatten   bool
	Options   *appconfig.ExtractOptions
	OnEvent   func(jobqueue.Event)
}

// StartExtract runs one job per item, in order, on the extraction slot.
// Packaged items go through the unpacking tool, the rest are copied. The
// tool is located before anything starts; if it is missing the batch is
// refused with an error naming the expected path.
func (o *Orchestrator) StartExtract(ctx context.Context, req ExtractRequest) (*Batch, error) {
	if len(req.Items) == 0 {
		return nil, errs.Invalid("orchestrator.StartExtract", "no items selected")
	}
	outputDir := req.OutputDir
	flatten := req.Flatten
	if outputDir == "" {
		outputDir = o.cfg.OutputDir
		flatten = flatten || o.cfg.Flatten
	}
	opts := o.cfg.Extract
	if req.Options != nil {
		opts = *req.Options
	}

	q := jobqueue.NewQueue()
	needsTool := false
	for _, it := range req.Items {
		if _, err := q.AddJob(tasks.ExtractJob(it, outputDir, flatten)); err != nil {
			return nil, err
		}
		needsTool = needsTool || it.Packaged
	}

	run, err := o.extract.Start(ctx, q, func(context.Context) (tasks.Registry, func(), error) {
		reg := tasks.Registry{jobqueue.KindCopy: tasks.CopyTask(o.logger)}
		if needsTool {
			tool, err := o.resolver.Resolve(toolexec.ExtractTool, o.cfg.ExtractTool)
			if err != nil {
				return nil, nil, err
			}
			reg[jobqueue.KindExtract] = tasks.ExtractTask(tool, opts, o.logger)
		}
		return reg, nil, nil
	})
	if err != nil {
		return nil, err
	}
	return o.relay(run, req.OnEvent, nil), nil
}

// StopExtract cancels the running extraction batch, if any.
func (o *Orchestrator) StopExtract() bool { return o.extract.Stop() }

// ExtractRunning reports whether an extraction batch holds the slot.
func (o *Orchestrator) ExtractRunning() bool { return o.extract.Running() }

// TagRequest describes a tagging batch over item folders. Zero ModelDir
// and Threshold fall back to the configuration.
type TagRequest struct {
	Paths      []string
	ModelDir   string
	Threshold  float64
	OnProgress tasks.ProgressFunc
	OnEvent    func(jobqueue.Event)
}

// StartTagging loads the model once and tags every folder's preview, one at
// a time, on the tagging slot. Missing model files refuse the batch before
// any item is attempted. The catalog is refreshed for the items tagged.
func (o *Orchestrator) StartTagging(ctx context.Context, req TagRequest) (*Batch, error) {
	if len(req.Paths) == 0 {
		return nil, errs.Invalid("orchestrator.StartTagging", "no items selected")
	}
	modelDir := req.ModelDir
	if modelDir == "" {
		modelDir = o.cfg.Tagger.ModelDir
	}
	threshold := req.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = o.cfg.Tagger.Threshold
	}

	q := jobqueue.NewQueue()
	for _, j := range tasks.TagJobs(req.Paths) {
		if _, err := q.AddJob(j); err != nil {
			return nil, err
		}
	}

	run, err := o.tag.Start(ctx, q, func(context.Context) (tasks.Registry, func(), error) {
		m, err := tasks.LoadModel(modelDir, o.cfg.Tagger.ORTSharedLibraryPath)
		if err != nil {
			return nil, nil, err
		}
		release := func() {
			if err := m.Close(); err != nil {
				o.logger.Warn().Err(err).Msg("close tagging model")
			}
		}
		return tasks.Registry{jobqueue.KindTag: tasks.TagTask(m, threshold)}, release, nil
	})
	if err != nil {
		return nil, err
	}

	onEvent := func(e jobqueue.Event) {
		if req.OnProgress != nil && e.Type == jobqueue.EventJobFinished && !e.Skipped {
			req.OnProgress(e.Index, e.Total, e.Name, e.Job.Err)
		}
		if req.OnEvent != nil {
			req.OnEvent(e)
		}
	}
	after := func() {
		var tagged []string
		for _, j := range q.Jobs() {
			if j.State == jobqueue.StateSucceeded {
				tagged = append(tagged, j.Input)
			}
		}
		o.refresh(tagged)
	}
	return o.relay(run, onEvent, after), nil
}

// StopTagging cancels the running tagging batch, if any.
func (o *Orchestrator) StopTagging() bool { return o.tag.Stop() }

// TaggingRunning reports whether a tagging batch holds the slot.
func (o *Orchestrator) TaggingRunning() bool { return o.tag.Running() }

// refresh re-indexes item folders after their sidecars changed. Items live
// one level below their root.
func (o *Orchestrator) refresh(dirs []string) {
	if o.catalog == nil || len(dirs) == 0 {
		return
	}
	byRoot := map[string][]string{}
	for _, d := range dirs {
		root := filepath.Dir(d)
		byRoot[root] = append(byRoot[root], d)
	}
	for root, ds := range byRoot {
		if err := o.catalog.Refresh(context.Background(), root, ds); err != nil {
			o.logger.Warn().Err(err).Str("root", root).Msg("catalog refresh failed")
		}
	}
}

func changed(results []collections.Result) []string {
	var out []string
	for _, r := range results {
		if r.Changed {
			out = append(out, r.Path)
		}
	}
	return out
}

func (o *Orchestrator) collectionsChanged(action, label string, results []collections.Result) {
	o.refresh(changed(results))
	o.broadcast(EventCollectionsChanged, map[string]any{
		"action":  action,
		"label":   label,
		"results": results,
	})
}

// AddToCollection puts label on each item folder. Per-item failures are in
// the results.
func (o *Orchestrator) AddToCollection(paths []string, label string) ([]collections.Result, error) {
	results, err := o.collections.Add(paths, label)
	if err != nil {
		return nil, err
	}
	o.collectionsChanged("add", label, results)
	return results, nil
}

// RemoveFromCollection takes label off each item folder.
func (o *Orchestrator) RemoveFromCollection(paths []string, label string) ([]collections.Result, error) {
	results, err := o.collections.Remove(paths, label)
	if err != nil {
		return nil, err
	}
	o.collectionsChanged("remove", label, results)
	return results, nil
}

// DeleteCollection removes label from every item under root.
func (o *Orchestrator) DeleteCollection(ctx context.Context, root, label string) ([]collections.Result, error) {
	root, err := o.root(root)
	if err != nil {
		return nil, err
	}
	results, err := o.collections.DeleteEverywhere(ctx, root, label)
	if err != nil {
		return results, err
	}
	o.collectionsChanged("delete", label, results)
	return results, nil
}

// Collections lists the labels in use according to the catalog.
func (o *Orchestrator) Collections(ctx context.Context) ([]catalog.CollectionCount, error) {
	if o.catalog == nil {
		return nil, errs.Invalid("orchestrator.Collections", "catalog is disabled")
	}
	return o.catalog.Collections(ctx)
}

// Search queries the catalog. Run a scan first to populate it.
func (o *Orchestrator) Search(ctx context.Context, query string, limit, offset int) ([]media.Item, bool, error) {
	if o.catalog == nil {
		return nil, false, errs.Invalid("orchestrator.Search", "catalog is disabled")
	}
	return o.catalog.Search(ctx, query, limit, offset)
}

// LargestAssets ranks the renderable files under dir. n <= 0 uses the
// configured maximum.
func (o *Orchestrator) LargestAssets(dir string, n int) ([]media.AssetCandidate, error) {
	if n <= 0 {
		n = o.cfg.MaxAssets
	}
	return media.LargestAssets(dir, n, o.logger)
}

func (o *Orchestrator) wallpaperPlayer() (*wallpaper.Player, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return o.player, nil
	}
	helper, err := o.resolver.Resolve(toolexec.WallpaperHelper, o.cfg.WallpaperHelper)
	if err != nil {
		return nil, err
	}
	o.player = wallpaper.New(helper, o.logger)
	return o.player, nil
}

// SetWallpaper shows file on the desktop, replacing the previous wallpaper.
func (o *Orchestrator) SetWallpaper(ctx context.Context, file string, mute bool) error {
	p, err := o.wallpaperPlayer()
	if err != nil {
		return err
	}
	if err := p.Set(ctx, file, mute); err != nil {
		return err
	}
	o.broadcast(EventWallpaperChanged, map[string]any{"file": file, "mute": mute})
	return nil
}

// WallpaperExited returns a channel closed when the helper started by this
// process exits.
func (o *Orchestrator) WallpaperExited() <-chan struct{} {
	o.mu.Lock()
	p := o.player
	o.mu.Unlock()
	if p == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return p.Exited()
}

// StopWallpaper ends the wallpaper helper started by this process.
func (o *Orchestrator) StopWallpaper() bool {
	o.mu.Lock()
	p := o.player
	o.mu.Unlock()
	if p == nil {
		return false
	}
	stopped := p.Stop()
	if stopped {
		o.broadcast(EventWallpaperChanged, map[string]any{"file": ""})
	}
	return stopped
}

// Info runs the unpacking tool's info command on path and returns its
// output. It shares the extraction slot, so it is refused while an
// extraction batch runs. onLine, when set, sees each output line.
func (o *Orchestrator) Info(ctx context.Context, path string, opts tasks.InfoOptions, onLine func(stream, line string)) (string, error) {
	q := jobqueue.NewQueue()
	if _, err := q.AddJob(jobqueue.Job{Kind: jobqueue.KindInfo, Name: filepath.Base(path), Input: path}); err != nil {
		return "", err
	}
	run, err := o.extract.Start(ctx, q, func(context.Context) (tasks.Registry, func(), error) {
		tool, err := o.resolver.Resolve(toolexec.ExtractTool, o.cfg.ExtractTool)
		if err != nil {
			return nil, nil, err
		}
		return tasks.Registry{jobqueue.KindInfo: tasks.InfoTask(tool, opts)}, nil, nil
	})
	if err != nil {
		return "", err
	}
	var onEvent func(jobqueue.Event)
	if onLine != nil {
		onEvent = func(e jobqueue.Event) {
			if e.Type == jobqueue.EventJobOutput {
				onLine(e.Stream, e.Line)
			}
		}
	}
	b := o.relay(run, onEvent, nil)
	b.Wait()

	j := b.Jobs()[0]
	switch j.State {
	case jobqueue.StateSucceeded:
		return j.Stdout, nil
	case jobqueue.StateFailed:
		return j.Stdout, j.Err
	default:
		return j.Stdout, errs.Cancelled("info")
	}
}

// Close cancels running batches and waits for them to settle. The wallpaper
// helper is left running.
func (o *Orchestrator) Close() {
	for _, r := range []*runners.Runner{o.extract, o.tag} {
		if run := r.Current(); run != nil {
			run.Cancel()
			run.Wait()
		}
	}
}

// Summary renders a batch summary for people.
func Summary(s jobqueue.Summary) string {
	msg := fmt.Sprintf("%d succeeded, %d failed", s.Succeeded, s.Failed)
	if s.Cancelled > 0 || s.Skipped > 0 {
		msg += fmt.Sprintf(", %d cancelled, %d skipped", s.Cancelled, s.Skipped)
	}
	return msg
}
