package runners

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/tasks"
)

func newQueue(t *testing.T, n int) *jobqueue.Queue {
	t.Helper()
	q := jobqueue.NewQueue()
	for i := 1; i <= n; i++ {
		if _, err := q.AddJob(jobqueue.Job{Kind: jobqueue.KindExtract, Name: fmt.Sprint(i)}); err != nil {
			t.Fatal(err)
		}
	}
	return q
}

func registry(fn tasks.TaskFunc) PrepareFunc {
	return func(context.Context) (tasks.Registry, func(), error) {
		return tasks.Registry{jobqueue.KindExtract: fn}, nil, nil
	}
}

func waitDone(t *testing.T, run *Run) jobqueue.Summary {
	t.Helper()
	select {
	case <-run.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish")
	}
	return run.Wait()
}

func TestSecondStartIsRejected(t *testing.T) {
	r := New("extract", zerolog.Nop())
	started := make(chan struct{})
	release := make(chan struct{})
	var spawned atomic.Int32

	blocking := func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error {
		spawned.Add(1)
		close(started)
		<-release
		return nil
	}
	run, err := r.Start(context.Background(), newQueue(t, 1), registry(blocking))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	var prepared bool
	second := newQueue(t, 1)
	_, err = r.Start(context.Background(), second, func(context.Context) (tasks.Registry, func(), error) {
		prepared = true
		return nil, nil, nil
	})
	if !errors.Is(err, errs.ErrAlreadyRunning) || errs.KindOf(err) != errs.KindAlreadyRunning {
		t.Fatalf("err = %v, want already running", err)
	}
	if prepared || spawned.Load() != 1 {
		t.Fatalf("rejected start must not prepare or run anything (prepared=%v spawned=%d)", prepared, spawned.Load())
	}
	if j := second.Jobs()[0]; j.State != jobqueue.StateIdle {
		t.Fatalf("rejected queue touched: %+v", j)
	}

	close(release)
	waitDone(t, run)
	if r.Running() {
		t.Fatal("slot should be free after the batch")
	}
	run2, err := r.Start(context.Background(), second, registry(func(context.Context, *jobqueue.Job, *jobqueue.Queue) error { return nil }))
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if sum := waitDone(t, run2); sum.Succeeded != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestCancelAfterSecondItem(t *testing.T) {
	r := New("extract", zerolog.Nop())
	inFlight := make(chan struct{})
	var calls atomic.Int32

	task := func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error {
		calls.Add(1)
		if j.Index < 3 {
			return nil
		}
		close(inFlight)
		<-ctx.Done()
		return errs.Cancelled("extract " + j.Name)
	}
	q := newQueue(t, 5)
	run, err := r.Start(context.Background(), q, registry(task))
	if err != nil {
		t.Fatal(err)
	}

	var events []jobqueue.Event
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range run.Events() {
			events = append(events, e)
		}
	}()

	<-inFlight
	if !r.Stop() {
		t.Fatal("Stop should find the running batch")
	}
	sum := waitDone(t, run)
	<-collected

	if calls.Load() != 3 {
		t.Fatalf("task ran %d times, want 3", calls.Load())
	}
	want := []jobqueue.JobState{
		jobqueue.StateSucceeded, jobqueue.StateSucceeded, jobqueue.StateCancelled,
		jobqueue.StateIdle, jobqueue.StateIdle,
	}
	for i, j := range q.Jobs() {
		if j.State != want[i] {
			t.Errorf("job %d state = %v, want %v", i+1, j.State, want[i])
		}
		if skipped := i >= 3; j.Skipped != skipped {
			t.Errorf("job %d skipped = %v", i+1, j.Skipped)
		}
	}
	if sum.Succeeded != 2 || sum.Cancelled != 1 || sum.Skipped != 2 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	var finished []int
	for _, e := range events {
		if e.Type == jobqueue.EventJobFinished {
			finished = append(finished, e.Index)
		}
	}
	if fmt.Sprint(finished) != "[1 2 3 4 5]" {
		t.Fatalf("finished events = %v, want one per item in order", finished)
	}
	if last := events[len(events)-1]; last.Type != jobqueue.EventBatchFinished {
		t.Fatalf("last event = %s", last.Type)
	}
	if r.Stop() {
		t.Fatal("Stop on an idle runner should report false")
	}
}

func TestPrepareFailureReleasesSlot(t *testing.T) {
	r := New("tag", zerolog.Nop())
	q := newQueue(t, 2)
	boom := errs.NotFound("onnxtag.Load", "/models/model.onnx")
	_, err := r.Start(context.Background(), q, func(context.Context) (tasks.Registry, func(), error) {
		return nil, nil, boom
	})
	if err != boom {
		t.Fatalf("err = %v", err)
	}
	if r.Running() {
		t.Fatal("slot must be released")
	}
	if !q.Closed() || q.Summary().Skipped != 2 {
		t.Fatalf("queue should be closed with all jobs skipped: %+v", q.Summary())
	}
}

func TestReleaseRunsAfterBatch(t *testing.T) {
	r := New("tag", zerolog.Nop())
	var released atomic.Bool
	run, err := r.Start(context.Background(), newQueue(t, 2), func(context.Context) (tasks.Registry, func(), error) {
		reg := tasks.Registry{jobqueue.KindExtract: func(context.Context, *jobqueue.Job, *jobqueue.Queue) error {
			if released.Load() {
				return errors.New("released too early")
			}
			return nil
		}}
		return reg, func() { released.Store(true) }, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if sum := waitDone(t, run); sum.Succeeded != 2 || !released.Load() {
		t.Fatalf("summary = %+v released = %v", sum, released.Load())
	}
}
