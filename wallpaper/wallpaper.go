// Package wallpaper drives the native desktop helper that renders an image
// or video as the desktop background. At most one helper instance is alive.
package wallpaper

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stevecastle/wallkit/errs"
	"github.com/stevecastle/wallkit/toolexec"
)

// MuteFlag is passed to the helper to silence video wallpapers.
const MuteFlag = "--mute"

// Player owns the running helper process.
type Player struct {
	helper string
	logger zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	file   string
	exited chan struct{}
}

// New returns a Player launching the helper at helperPath.
func New(helperPath string, logger zerolog.Logger) *Player {
	return &Player{
		helper: helperPath,
		logger: logger.With().Str("component", "wallpaper").Logger(),
	}
}

// Helper returns the helper path.
func (p *Player) Helper() string { return p.helper }

// Args builds the helper command line.
func Args(file string, mute bool) []string {
	args := []string{file}
	if mute {
		args = append(args, MuteFlag)
	}
	return args
}

// Set replaces the current wallpaper with file. The previous helper, if
// any, is killed with its whole process tree before the new one starts.
func (p *Player) Set(ctx context.Context, file string, mute bool) error {
	const op = "wallpaper.Set"
	if _, err := os.Stat(file); err != nil {
		if os.IsNotExist(err) {
			return errs.NotFound(op, file)
		}
		return errors.Wrapf(err, "stat %s", file)
	}
	if err := ctx.Err(); err != nil {
		return errs.Cancelled(op)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()

	if err := toolexec.EnsureExecutable(p.helper); err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return errs.NotFound(op, p.helper)
		}
		return errs.ProcessFailure(op, p.helper, 0, "", err)
	}

	// The helper outlives the request that launched it; Stop or the next
	// Set ends it.
	cmd := toolexec.Command(context.Background(), p.helper, Args(file, mute)...)
	if err := cmd.Start(); err != nil {
		return errs.ProcessFailure(op, p.helper, 0, "", errors.Wrap(err, "start"))
	}
	exited := make(chan struct{})
	p.cmd, p.file, p.exited = cmd, file, exited

	l := p.logger.With().Str("file", file).Int("pid", cmd.Process.Pid).Logger()
	l.Info().Bool("mute", mute).Msg("wallpaper helper started")
	go func() {
		defer close(exited)
		if err := cmd.Wait(); err != nil {
			l.Debug().Err(err).Int("exit_code", cmd.ProcessState.ExitCode()).Msg("wallpaper helper exited")
			return
		}
		l.Debug().Msg("wallpaper helper exited")
	}()
	return nil
}

// Stop kills the running helper. It reports whether one was running.
func (p *Player) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *Player) stopLocked() bool {
	if p.cmd == nil {
		return false
	}
	alive := p.running()
	if alive {
		if err := toolexec.KillTree(p.cmd.Process); err != nil {
			p.logger.Warn().Err(err).Str("file", p.file).Msg("kill wallpaper helper")
		}
	}
	<-p.exited
	p.cmd, p.file, p.exited = nil, "", nil
	return alive
}

// Current returns the file being shown, or "" when no helper is alive.
func (p *Player) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || !p.running() {
		return ""
	}
	return p.file
}

// Exited returns a channel closed when the current helper exits. With no
// helper it is already closed.
func (p *Player) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited == nil {
		c := make(chan struct{})
		close(c)
		return c
	}
	return p.exited
}

func (p *Player) running() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}
