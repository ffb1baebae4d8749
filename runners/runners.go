// Package runners enforces that at most one batch of a given kind runs at a
// time. A Runner is either idle or holds exactly one Run.
package runners

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/tasks"
)

// PrepareFunc readies the resources a batch needs (resolving the tool,
// loading the model) once the slot is claimed. The returned release func,
// if any, runs after the last job settles. An error aborts the batch before
// any job starts.
type PrepareFunc func(ctx context.Context) (reg tasks.Registry, release func(), err error)

// Run is one batch in flight.
type Run struct {
	ID    string
	Queue *jobqueue.Queue

	cancel  context.CancelFunc
	done    chan struct{}
	summary jobqueue.Summary
}

// Events returns the batch's progress stream.
func (r *Run) Events() <-chan jobqueue.Event { return r.Queue.Events() }

// Cancel kills the in-flight job and skips the rest.
func (r *Run) Cancel() { r.cancel() }

// Done is closed once every job has settled and the runner is idle again.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the batch finishes and returns its summary.
func (r *Run) Wait() jobqueue.Summary {
	<-r.done
	return r.summary
}

// Runner is a single-flight slot.
type Runner struct {
	name   string
	logger zerolog.Logger

	mu      sync.Mutex
	current *Run
}

// New returns an idle Runner. name identifies it in logs.
func New(name string, logger zerolog.Logger) *Runner {
	return &Runner{
		name:   name,
		logger: logger.With().Str("component", "runner").Str("runner", name).Logger(),
	}
}

// Start claims the slot and runs the jobs of q in order on a new goroutine.
// It returns errs.ErrAlreadyRunning without touching q's jobs when another
// batch holds the slot. If prepare fails the slot is released, q is closed
// with every job skipped, and the error is returned.
func (r *Runner) Start(ctx context.Context, q *jobqueue.Queue, prepare PrepareFunc) (*Run, error) {
	r.mu.Lock()
	if r.current != nil {
		busy := r.current.ID
		r.mu.Unlock()
		r.logger.Warn().Str("batch", busy).Msg("batch already running")
		return nil, errs.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	run := &Run{ID: q.ID(), Queue: q, cancel: cancel, done: make(chan struct{})}
	r.current = run
	r.mu.Unlock()

	var (
		reg     tasks.Registry
		release func()
	)
	if prepare != nil {
		var err error
		reg, release, err = prepare(runCtx)
		if err != nil {
			run.summary = q.Close()
			r.finish(run)
			r.logger.Error().Err(err).Str("batch", run.ID).Msg("batch aborted before start")
			return nil, err
		}
	}

	r.logger.Info().Str("batch", run.ID).Int("jobs", len(q.Jobs())).Msg("batch started")
	go func() {
		run.summary = tasks.RunQueue(runCtx, q, reg, r.logger)
		if release != nil {
			release()
		}
		r.finish(run)
	}()
	return run, nil
}

// finish clears the slot before signalling Done, so a caller woken by Done
// can start the next batch immediately.
func (r *Runner) finish(run *Run) {
	run.cancel()
	r.mu.Lock()
	if r.current == run {
		r.current = nil
	}
	r.mu.Unlock()
	close(run.done)
}

// Current returns the batch in flight, or nil when idle.
func (r *Runner) Current() *Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Running reports whether a batch holds the slot.
func (r *Runner) Running() bool { return r.Current() != nil }

// Stop cancels the batch in flight. It reports whether there was one.
func (r *Runner) Stop() bool {
	run := r.Current()
	if run == nil {
		return false
	}
	r.logger.Info().Str("batch", run.ID).Msg("stop requested")
	run.Cancel()
	return true
}
