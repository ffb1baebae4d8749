//go:build !windows

package tasks

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/appconfig"
	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/jobqueue"
)

// fakeTool writes a shell script standing in for the unpacking tool. It is
// left without exec bits so the task has to fix them.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "RePKG")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func runOne(t *testing.T, ctx context.Context, reg Registry, j jobqueue.Job) (jobqueue.Job, []jobqueue.Event) {
	t.Helper()
	q := jobqueue.NewQueue()
	if _, err := q.AddJob(j); err != nil {
		t.Fatal(err)
	}
	RunQueue(ctx, q, reg, zerolog.Nop())
	var events []jobqueue.Event
	for e := range q.Events() {
		events = append(events, e)
	}
	return q.Jobs()[0], events
}

func TestExtractTaskSuccessStreamsOutput(t *testing.T) {
	tool := fakeTool(t, `echo "args: $*"; echo "warn" >&2; echo done`)
	out := filepath.Join(t.TempDir(), "out")
	reg := Registry{jobqueue.KindExtract: ExtractTask(tool, appconfig.ExtractOptions{Recursive: true}, zerolog.Nop())}

	job, events := runOne(t, context.Background(), reg, jobqueue.Job{Kind: jobqueue.KindExtract, Name: "1", Input: "/lib/1/scene.pkg", OutputDir: out})
	if job.State != jobqueue.StateSucceeded {
		t.Fatalf("state = %v (%s)", job.State, job.Error)
	}
	if !strings.Contains(job.Stdout, "args: extract -o "+out+" -r /lib/1/scene.pkg") {
		t.Fatalf("stdout = %q", job.Stdout)
	}
	if job.Stderr != "warn\n" {
		t.Fatalf("stderr = %q", job.Stderr)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatal("output directory was not created")
	}

	var lines []string
	for _, e := range events {
		if e.Type == jobqueue.EventJobOutput && e.Stream == jobqueue.Stdout {
			lines = append(lines, e.Line)
		}
	}
	if len(lines) != 2 || lines[1] != "done" {
		t.Fatalf("stdout events = %v", lines)
	}
}

func TestExtractTaskNonzeroExit(t *testing.T) {
	tool := fakeTool(t, `echo "bad package header" >&2; exit 3`)
	reg := Registry{jobqueue.KindExtract: ExtractTask(tool, appconfig.ExtractOptions{}, zerolog.Nop())}

	job, _ := runOne(t, context.Background(), reg, jobqueue.Job{Kind: jobqueue.KindExtract, Name: "1", Input: "x.pkg"})
	if job.State != jobqueue.StateFailed {
		t.Fatalf("state = %v", job.State)
	}
	if job.ExitCode != 3 {
		t.Fatalf("exit code = %d", job.ExitCode)
	}
	if errs.KindOf(job.Err) != errs.KindProcessFailure {
		t.Fatalf("kind = %v", errs.KindOf(job.Err))
	}
	if !strings.Contains(job.Error, "bad package header") || !strings.Contains(job.Error, "3") {
		t.Fatalf("error should carry stderr and exit code: %q", job.Error)
	}
}

func TestExtractTaskSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory cannot be executed.
	reg := Registry{jobqueue.KindExtract: ExtractTask(dir, appconfig.ExtractOptions{}, zerolog.Nop())}
	job, _ := runOne(t, context.Background(), reg, jobqueue.Job{Kind: jobqueue.KindExtract, Name: "1", Input: "x.pkg"})
	if job.State != jobqueue.StateFailed || errs.KindOf(job.Err) != errs.KindProcessFailure {
		t.Fatalf("job = %v %v", job.State, job.Err)
	}
}

func TestExtractTaskCancelKillsProcess(t *testing.T) {
	tool := fakeTool(t, `echo started; sleep 30`)
	reg := Registry{jobqueue.KindExtract: ExtractTask(tool, appconfig.ExtractOptions{}, zerolog.Nop())}

	ctx, cancel := context.WithCancel(context.Background())
	q := jobqueue.NewQueue()
	q.AddJob(jobqueue.Job{Kind: jobqueue.KindExtract, Name: "1", Input: "x.pkg"})
	q.AddJob(jobqueue.Job{Kind: jobqueue.KindExtract, Name: "2", Input: "y.pkg"})
	go func() {
		for e := range q.Events() {
			if e.Type == jobqueue.EventJobOutput && e.Line == "started" {
				cancel()
			}
		}
	}()

	start := time.Now()
	sum := RunQueue(ctx, q, reg, zerolog.Nop())
	if time.Since(start) > 10*time.Second {
		t.Fatalf("cancellation took %v", time.Since(start))
	}
	jobs := q.Jobs()
	if jobs[0].State != jobqueue.StateCancelled {
		t.Fatalf("in-flight job = %v, want Cancelled", jobs[0].State)
	}
	if !jobs[1].Skipped || jobs[1].State != jobqueue.StateIdle {
		t.Fatalf("queued job = %+v, want skipped", jobs[1])
	}
	if sum.Cancelled != 1 || sum.Skipped != 1 || sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestExtractTaskDoesNotHangOnEscapedGrandchild(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	// The grandchild leaves the process group and keeps stdout open.
	tool := fakeTool(t, `echo unpacked; setsid sleep 30 &`)
	reg := Registry{jobqueue.KindExtract: ExtractTask(tool, appconfig.ExtractOptions{}, zerolog.Nop())}

	start := time.Now()
	job, _ := runOne(t, context.Background(), reg, jobqueue.Job{Kind: jobqueue.KindExtract, Name: "1", Input: "x.pkg"})
	if took := time.Since(start); took > 20*time.Second {
		t.Fatalf("extract took %v", took)
	}
	if job.State != jobqueue.StateSucceeded {
		t.Fatalf("state = %v (%s)", job.State, job.Error)
	}
	if !strings.Contains(job.Stdout, "unpacked") {
		t.Fatalf("stdout = %q", job.Stdout)
	}
}

func TestCopyTask(t *testing.T) {
	src := t.TempDir()
	os.WriteFile(filepath.Join(src, "preview.jpg"), []byte("img"), 0o644)
	os.WriteFile(filepath.Join(src, "scene.json"), []byte("{}"), 0o644)
	os.MkdirAll(filepath.Join(src, "media"), 0o755)
	os.WriteFile(filepath.Join(src, "media", "clip.mp4"), []byte("mp4"), 0o644)
	dst := filepath.Join(src, "extracted")

	reg := Registry{jobqueue.KindCopy: CopyTask(zerolog.Nop())}
	job, _ := runOne(t, context.Background(), reg, jobqueue.Job{Kind: jobqueue.KindCopy, Name: "x", Input: src, OutputDir: dst})
	if job.State != jobqueue.StateSucceeded || job.Copied != 2 {
		t.Fatalf("job = %v copied=%d err=%s", job.State, job.Copied, job.Error)
	}
	if _, err := os.Stat(filepath.Join(dst, "media", "clip.mp4")); err != nil {
		t.Fatal("clip.mp4 not copied")
	}
	if _, err := os.Stat(filepath.Join(dst, "scene.json")); !os.IsNotExist(err) {
		t.Fatal("scene.json must not be copied")
	}
}

func TestUnknownKindFails(t *testing.T) {
	job, _ := runOne(t, context.Background(), Registry{}, jobqueue.Job{Kind: "bogus", Name: "x"})
	if job.State != jobqueue.StateFailed || !strings.Contains(job.Error, "task not found") {
		t.Fatalf("job = %+v", job)
	}
}
