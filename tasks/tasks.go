package tasks

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/jobqueue"
	"github.com/stevecastle/wallkit/toolexec"
)

// TaskFunc performs one job. It reports progress through q and returns nil
// on success. It must not change the job state itself; RunQueue settles it.
type TaskFunc func(ctx context.Context, j *jobqueue.Job, q *jobqueue.Queue) error

// Registry maps a job kind to the task that runs it.
type Registry map[jobqueue.Kind]TaskFunc

// RunQueue claims and runs the jobs of q one at a time, in order, until the
// queue is empty or ctx is cancelled, then closes q. Cancellation is checked
// between jobs: the job in flight keeps its own outcome and ends Cancelled
// only when its task reports a cancellation error.
func RunQueue(ctx context.Context, q *jobqueue.Queue, reg Registry, logger zerolog.Logger) jobqueue.Summary {
	for ctx.Err() == nil {
		j := q.ClaimJob()
		if j == nil {
			break
		}
		l := logger.With().Str("batch", q.ID()).Int("index", j.Index).Str("item", j.Name).Logger()

		fn, ok := reg[j.Kind]
		if !ok {
			err := errs.Invalid("tasks.RunQueue", "task not found: "+string(j.Kind))
			_ = q.PushJobOutput(j.ID, jobqueue.Stderr, err.Error())
			_ = q.ErrorJob(j.ID, err)
			l.Error().Err(err).Msg("no task registered")
			continue
		}

		err := fn(ctx, j, q)
		switch {
		case err == nil:
			_ = q.CompleteJob(j.ID)
			l.Info().Msg("job succeeded")
		case errs.IsCancelled(err):
			_ = q.CancelJob(j.ID)
			l.Info().Msg("job cancelled")
		default:
			_ = q.ErrorJob(j.ID, err)
			ev := l.Warn().Err(err)
			var e *errs.Error
			if errors.As(err, &e) && e.ExitCode != 0 {
				ev = ev.Int("exit_code", e.ExitCode)
			}
			ev.Msg("job failed")
		}
	}
	sum := q.Close()
	logger.Info().
		Str("batch", q.ID()).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Int("cancelled", sum.Cancelled).
		Int("skipped", sum.Skipped).
		Msg("batch finished")
	return sum
}

// ExecResult is the captured outcome of an external process.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// maxLine is the longest output line forwarded as a single event.
const maxLine = 1 << 20

// lineWriter splits one output stream into lines, keeping a full copy in
// into and forwarding each line to onLine. A trailing carriage return is
// dropped; a line longer than maxLine is forwarded in pieces.
type lineWriter struct {
	stream string
	into   *strings.Builder
	onLine func(stream, line string)
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLine {
		w.emit(w.buf[:maxLine])
		w.buf = w.buf[maxLine:]
	}
	return len(p), nil
}

// flush forwards an unterminated last line.
func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineWriter) emit(b []byte) {
	line := strings.TrimSuffix(string(b), "\r")
	w.into.WriteString(line)
	w.into.WriteByte('\n')
	if w.onLine != nil {
		w.onLine(w.stream, line)
	}
}

// executeCommand runs path with args, forwarding every stdout and stderr
// line to onLine as it arrives and capturing both streams in full. Lines of
// one stream arrive in order; the two streams are not ordered against each
// other. Cancelling ctx kills the process tree.
func executeCommand(ctx context.Context, op, path string, args []string, onLine func(stream, line string)) (ExecResult, error) {
	var res ExecResult

	var stdout, stderr strings.Builder
	outW := &lineWriter{stream: jobqueue.Stdout, into: &stdout, onLine: onLine}
	errW := &lineWriter{stream: jobqueue.Stderr, into: &stderr, onLine: onLine}

	cmd := toolexec.Command(ctx, path, args...)
	cmd.Stdout = outW
	cmd.Stderr = errW
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return res, errs.Cancelled(op)
		}
		return res, errs.ProcessFailure(op, path, 0, "", errors.Wrap(err, "start"))
	}

	// Wait copies both streams into the writers and, once the process is
	// gone, gives up on pipes still held by escaped grandchildren after
	// toolexec.WaitDelay.
	waitErr := cmd.Wait()
	outW.flush()
	errW.flush()
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		waitErr = nil
	}

	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if waitErr != nil && ctx.Err() != nil {
		return res, errs.Cancelled(op)
	}
	if waitErr != nil {
		out := res.Stderr
		if strings.TrimSpace(out) == "" {
			out = res.Stdout
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, errs.ProcessFailure(op, path, res.ExitCode, out, nil)
		}
		return res, errs.ProcessFailure(op, path, res.ExitCode, out, waitErr)
	}
	return res, nil
}
