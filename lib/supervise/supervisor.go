// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package supervise

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/seedfourtytwo/telegramshell/lib/classify"
	"github.com/seedfourtytwo/telegramshell/lib/clock"
)

const defaultGracePeriod = time.Second

// waitDelay bounds how long an exited process's pipes may stay open
// after its context is canceled, so an inherited descriptor held by a
// stray descendant cannot park the output reader forever.
const waitDelay = 10 * time.Second

// PTY dimensions for full-screen commands. 80x24 keeps one rendered
// screen comfortably inside a single output chunk.
const (
	ptyRows = 24
	ptyCols = 80
)

// Supervisor tracks the single active process per sender session.
// Sessions are independent: each has its own lock, and spawn/stop for
// one sender never contends with another sender's.
type Supervisor struct {
	logger *slog.Logger
	clock  clock.Clock
	grace  time.Duration

	mu       sync.Mutex
	sessions map[int64]*session
}

// session is one sender's slot. Its mutex serializes spawn, stop, and
// reap end-to-end, including the termination sequence, so a new
// process becomes current only after its predecessor is fully
// terminated.
type session struct {
	mu     sync.Mutex
	active *Process
}

// New returns a Supervisor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, clk clock.Clock) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		logger:   logger,
		clock:    clk,
		grace:    defaultGracePeriod,
		sessions: make(map[int64]*session),
	}
}

// Spawn launches the plan's command for the sender's session. Any
// process already recorded for the session is terminated and its slot
// cleared first, so the new process is current the moment Spawn
// returns. On launch failure the slot is left empty.
func (s *Supervisor) Spawn(ctx context.Context, senderID int64, plan classify.Plan) (*Process, error) {
	slot := s.slot(senderID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if previous := slot.active; previous != nil {
		s.logger.Info("replacing active process",
			"sender_id", senderID,
			"pid", previous.pid,
			"command", previous.Command)
		previous.stopRequested.Store(true)
		previous.Terminate()
		slot.active = nil
	}

	proc, err := s.launch(ctx, senderID, plan)
	if err != nil {
		return nil, err
	}
	slot.active = proc

	s.logger.Info("process started",
		"sender_id", senderID,
		"pid", proc.pid,
		"command", proc.Command,
		"continuous", plan.Continuous,
		"pty", plan.PTY)
	return proc, nil
}

// Stop terminates the sender's active process. Returns false when no
// process is recorded. The session slot is cleared unconditionally,
// even when every signal failed: a vanished process must never block
// future spawns.
func (s *Supervisor) Stop(senderID int64) bool {
	slot := s.slot(senderID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	proc := slot.active
	if proc == nil {
		return false
	}

	s.logger.Info("stopping process",
		"sender_id", senderID,
		"pid", proc.pid,
		"command", proc.Command)
	proc.stopRequested.Store(true)
	proc.Terminate()
	slot.active = nil
	return true
}

// Reap clears the sender's slot if it still holds the given handle.
// Called by the streaming path once it has observed natural exit; a
// handle already displaced by stop or a replacement spawn is left
// alone.
func (s *Supervisor) Reap(senderID int64, proc *Process) {
	slot := s.slot(senderID)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.active != nil && slot.active.ID == proc.ID {
		slot.active = nil
	}
}

// StopAll terminates every session's active process. Shutdown sweep;
// sessions are stopped concurrently so the grace windows overlap.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	senderIDs := make([]int64, 0, len(s.sessions))
	for senderID := range s.sessions {
		senderIDs = append(senderIDs, senderID)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, senderID := range senderIDs {
		wg.Add(1)
		go func(senderID int64) {
			defer wg.Done()
			s.Stop(senderID)
		}(senderID)
	}
	wg.Wait()
}

// slot returns the sender's session, creating it on first use. Slots
// are never removed; the population is bounded by the allow list.
func (s *Supervisor) slot(senderID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.sessions[senderID]
	if !ok {
		slot = &session{}
		s.sessions[senderID] = slot
	}
	return slot
}

// launch starts `sh -c <command>` in its own process group and wraps
// it in a Process handle. The shell is resolved via PATH, not
// hardcoded: /bin/sh may not exist or may be the wrong shell on some
// hosts.
func (s *Supervisor) launch(ctx context.Context, senderID int64, plan classify.Plan) (*Process, error) {
	procCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(procCtx, "sh", "-c", plan.Command)

	proc := &Process{
		ID:        uuid.New(),
		SenderID:  senderID,
		Command:   plan.Command,
		StartedAt: s.clock.Now(),
		cancel:    cancel,
		clk:       s.clock,
		grace:     s.grace,
		logger:    s.logger,
		done:      make(chan struct{}),
	}

	// Context death signals the whole group, not just the shell:
	// children inherit the output descriptors and would otherwise
	// outlive it. Escalation past SIGTERM is Terminate's job.
	cmd.Cancel = func() error {
		err := signalGroup(cmd.Process.Pid, unix.SIGTERM)
		if err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
		return nil
	}
	cmd.WaitDelay = waitDelay

	if plan.PTY {
		// Full-screen commands refuse to run without a terminal.
		// pty.StartWithSize makes the child a session leader, which
		// also makes it a group leader, so group signaling works the
		// same as in pipe mode.
		cmd.Env = append(os.Environ(), "TERM=xterm-256color")
		ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: ptyRows, Cols: ptyCols})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("starting %q under pty: %w", plan.Command, err)
		}
		proc.ptmx = ptmx
		proc.stdout = ptmx
	} else {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("stdout pipe: %w", err)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			cancel()
			return nil, fmt.Errorf("stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			cancel()
			return nil, fmt.Errorf("starting %q: %w", plan.Command, err)
		}
		proc.stdout = stdout
		proc.stderr = stderr
	}

	proc.cmd = cmd
	proc.pid = cmd.Process.Pid
	return proc, nil
}
