// Package errs classifies the failures surfaced by wallkit so callers can
// tell a missing file from a crashed tool or a user-initiated stop.
package errs

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the category of a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindMalformed
	KindProcessFailure
	KindCancelled
	KindAlreadyRunning
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMalformed:
		return "malformed"
	case KindProcessFailure:
		return "process_failure"
	case KindCancelled:
		return "cancelled"
	case KindAlreadyRunning:
		return "already_running"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Error carries enough context (path, exit code, captured output) to be
// actionable without reading logs.
type Error struct {
	Kind     Kind
	Op       string
	Path     string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch e.Kind {
	case KindNotFound:
		b.WriteString("not found")
	case KindMalformed:
		b.WriteString("malformed data")
	case KindProcessFailure:
		if e.ExitCode != 0 {
			fmt.Fprintf(&b, "process exited with code %d", e.ExitCode)
		} else {
			b.WriteString("process failed")
		}
	case KindCancelled:
		b.WriteString("cancelled")
	case KindAlreadyRunning:
		b.WriteString("already running")
	case KindInvalid:
		b.WriteString("invalid argument")
	default:
		b.WriteString("error")
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString(": ")
		b.WriteString(out)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrAlreadyRunning is returned when a single-flight operation is requested
// while another one is active.
var ErrAlreadyRunning = &Error{Kind: KindAlreadyRunning, Op: "start"}

// Is lets errors.Is match any *Error of the same kind against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t == ErrAlreadyRunning && e.Kind == KindAlreadyRunning
}

// NotFound reports a missing file or directory.
func NotFound(op, path string) error {
	return &Error{Kind: KindNotFound, Op: op, Path: path}
}

// Malformed reports data that could not be parsed.
func Malformed(op, path string, cause error) error {
	return &Error{Kind: KindMalformed, Op: op, Path: path, Err: cause}
}

// Invalid reports a rejected caller argument.
func Invalid(op, msg string) error {
	return &Error{Kind: KindInvalid, Op: op, Err: errors.New(msg)}
}

// ProcessFailure reports a nonzero exit or a spawn failure.
func ProcessFailure(op, path string, exitCode int, output string, cause error) error {
	return &Error{Kind: KindProcessFailure, Op: op, Path: path, ExitCode: exitCode, Output: output, Err: cause}
}

// Cancelled reports a user-initiated stop.
func Cancelled(op string) error {
	return &Error{Kind: KindCancelled, Op: op, Err: context.Canceled}
}

// KindOf classifies err. context.Canceled counts as KindCancelled.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindUnknown
}

// IsCancelled reports whether err represents a user-initiated stop.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
