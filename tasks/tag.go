package tasks

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/media"
	"github.com/stevecastle/wallkit/onnxtag"
	"github.com/stevecastle/wallkit/sidecar"
)

// Tagger labels one image. Implementations need not be safe for concurrent use.
type Tagger interface {
	Tag(imagePath string, threshold float64) ([]string, error)
}

// Model is a Tagger holding resources that must be released.
type Model interface {
	Tagger
	Close() error
}

// LoadModel loads the tagging model from modelDir. Tests replace it.
var LoadModel = func(modelDir, ortLibrary string) (Model, error) {
	m, err := onnxtag.Load(onnxtag.Options{ModelDir: modelDir, SharedLibraryPath: ortLibrary})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ErrNoPreview is the per-item failure for folders without a preview image.
var ErrNoPreview = errors.New("no preview found")

// TagTask tags the preview of the item folder in the job's Input and stores
// the labels in its sidecar.
func TagTask(t Tagger, threshold float64) TaskFunc {
	return func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error {
		preview, ok, err := media.FindPreview(j.Input)
		if err != nil {
			return err
		}
		if !ok {
			return &errs.Error{Kind: errs.KindNotFound, Op: "tag " + j.Name, Path: j.Input, Err: ErrNoPreview}
		}

		tags, err := t.Tag(preview, threshold)
		if err != nil {
			return errors.Wrapf(err, "tag %s", preview)
		}

		err = sidecar.Update(j.Input, func(doc sidecar.Document) error {
			doc.SetStrings(sidecar.KeyTags, tags)
			return nil
		})
		if err != nil {
			return err
		}
		_ = q.UpdateJob(j.ID, func(job *jobqueue.Job) { job.Tags = tags })
		_ = q.PushJobOutput(j.ID, jobqueue.Stdout, fmt.Sprintf("%d tags: %s", len(tags), strings.Join(tags, ", ")))
		return nil
	}
}

// TagJobs builds one tag job per item folder, in order.
func TagJobs(paths []string) []jobqueue.Job {
	jobs := make([]jobqueue.Job, 0, len(paths))
	for _, p := range paths {
		jobs = append(jobs, jobqueue.Job{Kind: jobqueue.KindTag, Name: filepath.Base(p), Input: p})
	}
	return jobs
}

// TagResult is the outcome for one item of a tagging batch.
type TagResult struct {
	Path  string   `json:"path"`
	Name  string   `json:"name"`
	Tags  []string `json:"tags,omitempty"`
	Err   error    `json:"-"`
	Error string   `json:"error,omitempty"`
}

// ProgressFunc is called once per processed item with its 1-based index.
type ProgressFunc func(index, total int, name string, err error)

// RunTagBatch tags paths one at a time with t. A failing item is recorded
// and the batch moves on. Cancellation is honoured between items; items
// never reached are reported as cancelled.
func RunTagBatch(ctx context.Context, t Tagger, paths []string, threshold float64, onProgress ProgressFunc, logger zerolog.Logger) ([]TagResult, jobqueue.Summary) {
	q := jobqueue.NewQueue()
	for _, j := range TagJobs(paths) {
		_, _ = q.AddJob(j)
	}

	events := q.Events()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range events {
			if e.Type == jobqueue.EventJobFinished && !e.Skipped && onProgress != nil {
				onProgress(e.Index, e.Total, e.Name, e.Job.Err)
			}
		}
	}()

	sum := RunQueue(ctx, q, Registry{jobqueue.KindTag: TagTask(t, threshold)}, logger)
	<-done
	return TagResults(q.Jobs()), sum
}

// TagResults converts finished tag jobs to results.
func TagResults(jobs []jobqueue.Job) []TagResult {
	results := make([]TagResult, 0, len(jobs))
	for _, j := range jobs {
		r := TagResult{Path: j.Input, Name: j.Name, Tags: j.Tags, Err: j.Err}
		if j.Skipped || (j.State == jobqueue.StateCancelled && r.Err == nil) {
			r.Err = errs.Cancelled("tag " + j.Name)
		}
		if r.Err != nil {
			r.Error = r.Err.Error()
		}
		results = append(results, r)
	}
	return results
}

// RunBatch loads the model once, tags every path and releases the model.
// Missing model files abort before any item is attempted.
func RunBatch(ctx context.Context, modelDir, ortLibrary string, paths []string, threshold float64, onProgress ProgressFunc, logger zerolog.Logger) ([]TagResult, jobqueue.Summary, error) {
	m, err := LoadModel(modelDir, ortLibrary)
	if err != nil {
		return nil, jobqueue.Summary{}, err
	}
	defer m.Close()
	results, sum := RunTagBatch(ctx, m, paths, threshold, onProgress, logger)
	return results, sum, nil
}
