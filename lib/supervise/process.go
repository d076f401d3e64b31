// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package supervise

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/seedfourtytwo/telegramshell/lib/clock"
)

// Process is the handle for one spawned shell process tree tied to a
// session. It is created by Supervisor.Spawn and reaped by Wait, which
// must be called exactly by the code path that has drained the output
// streams (calling Wait earlier closes the pipes out from under the
// reader).
type Process struct {
	// ID distinguishes this handle from any successor in the same
	// session slot, so a stale reap cannot remove a replacement.
	ID uuid.UUID

	// SenderID is the session the process belongs to.
	SenderID int64

	// Command is the post-rewrite command string passed to the shell.
	Command string

	// StartedAt is the spawn timestamp.
	StartedAt time.Time

	cmd    *exec.Cmd
	pid    int
	stdout io.ReadCloser
	stderr io.ReadCloser
	ptmx   *os.File
	cancel func()
	clk    clock.Clock
	grace  time.Duration
	logger *slog.Logger

	stopRequested atomic.Bool

	waitOnce sync.Once
	done     chan struct{}
	exitCode int
	waitErr  error
}

// PID returns the shell's process id.
func (p *Process) PID() int { return p.pid }

// Stdout returns the process's standard output stream. For PTY
// processes this is the terminal master, which carries the merged
// output of the whole tree.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns the process's standard error stream, or nil for PTY
// processes (a terminal has no separate error channel).
func (p *Process) Stderr() io.Reader {
	if p.stderr == nil {
		return nil
	}
	return p.stderr
}

// Done returns a channel closed once the process has been waited.
func (p *Process) Done() <-chan struct{} { return p.done }

// StopRequested reports whether the process was terminated by an
// explicit stop (operator command, replacement spawn, or shutdown)
// rather than by natural exit or a plan timeout.
func (p *Process) StopRequested() bool { return p.stopRequested.Load() }

// Wait reaps the process and returns its exit code. Safe to call more
// than once; every call returns the same result. The exit code is -1
// when the process died from a signal.
//
// Call Wait only after the output streams have reached EOF: Wait closes
// the parent's ends of the stdout/stderr pipes.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.cancel()
		if p.ptmx != nil {
			p.ptmx.Close()
		}

		switch {
		case err == nil:
			p.exitCode = 0
		default:
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				p.exitCode = exitErr.ExitCode()
			} else if p.cmd.ProcessState != nil {
				// Wait errors with a populated state (for example a
				// forced pipe teardown) still carry a usable code.
				p.exitCode = p.cmd.ProcessState.ExitCode()
			} else {
				p.exitCode = -1
				p.waitErr = err
			}
		}
		close(p.done)
	})
	return p.exitCode, p.waitErr
}

// Terminate runs the cooperative termination sequence: SIGTERM to the
// process group, a bounded grace window, then SIGKILL to any members
// still alive. It returns once the process has been reaped or the
// grace window has passed with the kill delivered. Signaling a process
// that is already gone is not an error.
func (p *Process) Terminate() {
	p.cancel()

	select {
	case <-p.done:
		// Already reaped. The pid may have been recycled by now;
		// signaling it could hit an unrelated process.
		return
	default:
	}

	p.signalGroup(unix.SIGTERM)

	select {
	case <-p.done:
		return
	case <-p.clk.After(p.grace):
	}

	p.signalGroup(unix.SIGKILL)
}

// signalGroup signals the whole process group, falling back to the
// single pid when the group cannot be determined (the process may have
// already exited). ESRCH is swallowed: a vanished process needs no
// signal.
func (p *Process) signalGroup(sig unix.Signal) {
	err := signalGroup(p.pid, sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		p.logger.Debug("signaling process group",
			"pid", p.pid,
			"signal", sig.String(),
			"error", err)
	}
}

func signalGroup(pid int, sig unix.Signal) error {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		// Group unknown: the leader may be gone. Signal the pid
		// directly in case it is still around.
		return unix.Kill(pid, sig)
	}
	return unix.Kill(-pgid, sig)
}
