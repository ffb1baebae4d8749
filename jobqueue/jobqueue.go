package jobqueue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stevecastle/wallkit/stream"
)

// JobState represents the current state of a job in the queue.
type JobState int

const (
	StateIdle JobState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s JobState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

func (s JobState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Kind selects the task that runs a job.
type Kind string

const (
	KindExtract Kind = "extract"
	KindCopy    Kind = "copy"
	KindTag     Kind = "tag"
	KindInfo    Kind = "info"
)

// Job is one unit of work in a batch.
type Job struct {
	ID          string   `json:"id"`
	BatchID     string   `json:"batchId"`
	Kind        Kind     `json:"kind"`
	Index       int      `json:"index"` // 1-based position in the batch
	Name        string   `json:"name"`
	Input       string   `json:"input"`
	PackagePath string   `json:"packagePath,omitempty"`
	OutputDir   string   `json:"outputDir,omitempty"`
	Args        []string `json:"args,omitempty"`
	State       JobState `json:"state"`
	Skipped     bool     `json:"skipped,omitempty"`

	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	ExitCode int      `json:"exitCode"`
	Copied   int      `json:"copied,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Error    string   `json:"error,omitempty"`
	Err      error    `json:"-"`

	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

// Event types.
const (
	EventJobStarted    = "job.started"
	EventJobOutput     = "job.output"
	EventJobFinished   = "job.finished"
	EventBatchFinished = "batch.finished"
)

// Output streams.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// Event is one progress record of a batch.
type Event struct {
	Type    string    `json:"type"`
	BatchID string    `json:"batchId"`
	JobID   string    `json:"jobId,omitempty"`
	Index   int       `json:"index,omitempty"`
	Total   int       `json:"total"`
	Name    string    `json:"name,omitempty"`
	Stream  string    `json:"stream,omitempty"`
	Line    string    `json:"line,omitempty"`
	State   JobState  `json:"state"`
	Skipped bool      `json:"skipped,omitempty"`
	Error   string    `json:"error,omitempty"`
	Job     *Job      `json:"job,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
	Time    time.Time `json:"time"`
}

// Summary aggregates the outcome of a batch.
type Summary struct {
	BatchID   string `json:"batchId"`
	Total     int    `json:"total"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Cancelled int    `json:"cancelled"`
	Skipped   int    `json:"skipped"`
}

// Partial reports a batch where some items succeeded and some failed.
func (s Summary) Partial() bool { return s.Succeeded > 0 && s.Failed > 0 }

var (
	ErrJobNotFound = errors.New("job not found")
	ErrClosed      = errors.New("batch is closed")
)

// Queue holds the ordered jobs of a single batch and publishes every
// transition on the batch's event stream.
type Queue struct {
	mu     sync.Mutex
	id     string
	jobs   []*Job
	byID   map[string]*Job
	events *stream.Stream[Event]
	closed bool
}

// NewQueue initializes and returns a new, empty batch.
func NewQueue() *Queue {
	return &Queue{
		id:     uuid.NewString(),
		byID:   make(map[string]*Job),
		events: stream.New[Event](),
	}
}

// ID returns the batch id.
func (q *Queue) ID() string { return q.id }

// Events returns the batch's progress stream. It is closed after the
// batch.finished event.
func (q *Queue) Events() <-chan Event { return q.events.C() }

// AddJob appends a job in Idle state and returns its id.
func (q *Queue) AddJob(j Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}

	job := j
	job.ID = uuid.NewString()
	job.BatchID = q.id
	job.Index = len(q.jobs) + 1
	job.State = StateIdle
	job.CreatedAt = time.Now()
	q.jobs = append(q.jobs, &job)
	q.byID[job.ID] = &job
	return job.ID, nil
}

// ClaimJob marks the first Idle job in FIFO order as Running and returns a
// snapshot of it. It returns nil when every job has been claimed. Later
// changes go through the queue methods, not the snapshot.
func (q *Queue) ClaimJob() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	for _, job := range q.jobs {
		if job.State == StateIdle && !job.Skipped {
			job.State = StateRunning
			job.StartedAt = time.Now()
			q.emit(Event{Type: EventJobStarted, JobID: job.ID, Index: job.Index, Name: job.Name, State: job.State})
			snap := *job
			return &snap
		}
	}
	return nil
}

// PushJobOutput records one line written by the job on stdout or stderr.
func (q *Queue) PushJobOutput(id, streamName, line string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return ErrJobNotFound
	}
	if streamName == Stderr {
		job.Stderr += line + "\n"
	} else {
		streamName = Stdout
		job.Stdout += line + "\n"
	}
	q.emit(Event{Type: EventJobOutput, JobID: id, Index: job.Index, Name: job.Name, Stream: streamName, Line: line, State: job.State})
	return nil
}

// UpdateJob runs fn on a job under the queue lock.
func (q *Queue) UpdateJob(id string, fn func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}

// CompleteJob marks a Running job as Succeeded.
func (q *Queue) CompleteJob(id string) error {
	return q.finish(id, StateSucceeded, nil)
}

// ErrorJob marks a Running job as Failed with cause.
func (q *Queue) ErrorJob(id string, cause error) error {
	if cause == nil {
		cause = errors.New("failed")
	}
	return q.finish(id, StateFailed, cause)
}

// CancelJob marks a Running job as Cancelled.
func (q *Queue) CancelJob(id string) error {
	return q.finish(id, StateCancelled, nil)
}

func (q *Queue) finish(id string, state JobState, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.byID[id]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != StateRunning {
		return errors.New("job is not running, cannot finish")
	}
	job.State = state
	job.FinishedAt = time.Now()
	if cause != nil {
		job.Err = cause
		job.Error = cause.Error()
	}
	q.emitFinished(job)
	return nil
}

// Close marks every job that never started as skipped, publishes the batch
// summary and closes the event stream. It is safe to call more than once.
func (q *Queue) Close() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return q.summaryLocked()
	}
	for _, job := range q.jobs {
		if job.State == StateIdle && !job.Skipped {
			job.Skipped = true
			q.emitFinished(job)
		}
	}
	q.closed = true
	sum := q.summaryLocked()
	q.emit(Event{Type: EventBatchFinished, Summary: &sum})
	q.events.Close()
	return sum
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Jobs returns a snapshot of the jobs in batch order.
func (q *Queue) Jobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, *j)
	}
	return out
}

// Job returns a snapshot of one job.
func (q *Queue) Job(id string) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.byID[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// Summary counts the current outcomes.
func (q *Queue) Summary() Summary {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.summaryLocked()
}

func (q *Queue) summaryLocked() Summary {
	s := Summary{BatchID: q.id, Total: len(q.jobs)}
	for _, j := range q.jobs {
		switch {
		case j.Skipped:
			s.Skipped++
		case j.State == StateSucceeded:
			s.Succeeded++
		case j.State == StateFailed:
			s.Failed++
		case j.State == StateCancelled:
			s.Cancelled++
		}
	}
	return s
}

func (q *Queue) emitFinished(job *Job) {
	snap := *job
	q.emit(Event{
		Type:    EventJobFinished,
		JobID:   job.ID,
		Index:   job.Index,
		Name:    job.Name,
		State:   job.State,
		Skipped: job.Skipped,
		Error:   job.Error,
		Job:     &snap,
	})
}

// emit must be called with q.mu held so events keep transition order.
func (q *Queue) emit(e Event) {
	e.BatchID = q.id
	e.Total = len(q.jobs)
	e.Time = time.Now()
	q.events.Send(e)
}
