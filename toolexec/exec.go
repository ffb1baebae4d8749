package toolexec

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// WaitDelay bounds how long Wait keeps copying output once the process has
// exited, in case a grandchild outside the process group still holds the
// pipes. It only applies when Stdout and Stderr are writers, not pipes
// obtained with StdoutPipe.
const WaitDelay = 5 * time.Second

// Command prepares path to run with its own directory as working directory,
// in a fresh process group. Cancelling ctx kills the whole group forcefully.
func Command(ctx context.Context, path string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = filepath.Dir(path)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return KillTree(cmd.Process)
	}
	cmd.WaitDelay = WaitDelay
	return cmd
}

// KillTree forcefully terminates p and every process it started.
func KillTree(p *os.Process) error {
	if p == nil {
		return nil
	}
	return killTree(p)
}

// EnsureExecutable adds the execute bits when the file has none.
func EnsureExecutable(path string) error {
	return ensureExecutable(path)
}
