// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package supervise

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/seedfourtytwo/telegramshell/lib/classify"
	"github.com/seedfourtytwo/telegramshell/lib/clock"
	"github.com/seedfourtytwo/telegramshell/lib/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	supervisor := New(slog.New(slog.NewTextHandler(io.Discard, nil)), clock.Real())
	// Short grace keeps the kill-escalation tests fast.
	supervisor.grace = 200 * time.Millisecond
	return supervisor
}

// drain reads both output streams to EOF, reaps the process, and
// delivers its exit code. Mirrors the streaming path's contract: Wait
// only after EOF.
func drain(proc *Process) <-chan int {
	exitc := make(chan int, 1)
	go func() {
		io.Copy(io.Discard, proc.Stdout())
		if stderr := proc.Stderr(); stderr != nil {
			io.Copy(io.Discard, stderr)
		}
		code, _ := proc.Wait()
		exitc <- code
	}()
	return exitc
}

func TestSpawnCapturesOutput(t *testing.T) {
	supervisor := newSupervisor(t)

	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "echo out; echo err >&2"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	stdout, err := io.ReadAll(proc.Stdout())
	if err != nil {
		t.Fatalf("reading stdout: %v", err)
	}
	stderr, err := io.ReadAll(proc.Stderr())
	if err != nil {
		t.Fatalf("reading stderr: %v", err)
	}

	if string(stdout) != "out\n" {
		t.Errorf("stdout = %q, want %q", stdout, "out\n")
	}
	if string(stderr) != "err\n" {
		t.Errorf("stderr = %q, want %q", stderr, "err\n")
	}

	code, err := proc.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	supervisor.Reap(1, proc)
	if supervisor.Stop(1) {
		t.Error("Stop after reap should report no process")
	}
}

func TestExitCode(t *testing.T) {
	supervisor := newSupervisor(t)

	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "exit 3"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	code := testutil.RequireReceive(t, drain(proc), 5*time.Second, "waiting for exit")
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	supervisor.Reap(1, proc)
}

func TestMissingExecutable(t *testing.T) {
	supervisor := newSupervisor(t)

	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "no-such-binary-telegramshell-test"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// The shell launches fine and reports the missing executable
	// itself: exit 127 plus a diagnostic on stderr.
	code := testutil.RequireReceive(t, drain(proc), 5*time.Second, "waiting for exit")
	if code != 127 {
		t.Errorf("exit code = %d, want 127", code)
	}
	supervisor.Reap(1, proc)
}

func TestStopTerminatesProcess(t *testing.T) {
	supervisor := newSupervisor(t)

	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "sleep 30", Continuous: true})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	exitc := drain(proc)

	if !supervisor.Stop(1) {
		t.Fatal("Stop should report a process was stopped")
	}

	code := testutil.RequireReceive(t, exitc, 5*time.Second, "waiting for stopped process to exit")
	if code != -1 {
		t.Errorf("exit code = %d, want -1 for signal death", code)
	}
	if !proc.StopRequested() {
		t.Error("StopRequested should be true after Stop")
	}

	if supervisor.Stop(1) {
		t.Error("second Stop should report no process")
	}
}

func TestStopWithoutProcess(t *testing.T) {
	supervisor := newSupervisor(t)
	if supervisor.Stop(42) {
		t.Error("Stop with no process should return false")
	}
}

func TestStopKillsDescendants(t *testing.T) {
	supervisor := newSupervisor(t)

	// The children inherit the stdout descriptor: EOF on the pipe
	// proves the whole group died, not just the shell.
	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "sleep 30 & sleep 30 & wait"})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	exitc := drain(proc)

	if !supervisor.Stop(1) {
		t.Fatal("Stop should report a process was stopped")
	}
	testutil.RequireReceive(t, exitc, 5*time.Second, "descendants should die with the group")
}

func TestStopEscalatesToSigkill(t *testing.T) {
	supervisor := newSupervisor(t)

	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: `trap '' TERM; echo ready; sleep 30`})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	// Wait for the trap to be installed before signaling.
	reader := bufio.NewReader(proc.Stdout())
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading readiness line: %v", err)
	}
	if strings.TrimSpace(line) != "ready" {
		t.Fatalf("readiness line = %q, want ready", line)
	}

	exitc := make(chan int, 1)
	go func() {
		io.Copy(io.Discard, reader)
		io.Copy(io.Discard, proc.Stderr())
		code, _ := proc.Wait()
		exitc <- code
	}()

	if !supervisor.Stop(1) {
		t.Fatal("Stop should report a process was stopped")
	}
	code := testutil.RequireReceive(t, exitc, 5*time.Second, "SIGKILL should end a TERM-ignoring process")
	if code != -1 {
		t.Errorf("exit code = %d, want -1 for signal death", code)
	}
}

func TestSpawnReplacesActiveProcess(t *testing.T) {
	supervisor := newSupervisor(t)

	first, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "sleep 30", Continuous: true})
	if err != nil {
		t.Fatalf("Spawn first: %v", err)
	}
	firstExit := drain(first)

	second, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "echo replaced"})
	if err != nil {
		t.Fatalf("Spawn second: %v", err)
	}

	code := testutil.RequireReceive(t, firstExit, 5*time.Second, "replaced process should be terminated")
	if code != -1 {
		t.Errorf("first exit code = %d, want -1 for signal death", code)
	}
	if !first.StopRequested() {
		t.Error("replaced process should be marked stop-requested")
	}

	stdout, _ := io.ReadAll(second.Stdout())
	io.Copy(io.Discard, second.Stderr())
	if string(stdout) != "replaced\n" {
		t.Errorf("second stdout = %q, want %q", stdout, "replaced\n")
	}
	if code, _ := second.Wait(); code != 0 {
		t.Errorf("second exit code = %d, want 0", code)
	}

	supervisor.Reap(1, second)
	if supervisor.Stop(1) {
		t.Error("Stop after reap should report no process")
	}
}

func TestReapIgnoresStaleHandle(t *testing.T) {
	supervisor := newSupervisor(t)

	first, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "echo one"})
	if err != nil {
		t.Fatalf("Spawn first: %v", err)
	}
	testutil.RequireReceive(t, drain(first), 5*time.Second, "first process should exit")

	// Spawn a successor without reaping the first. The stale handle
	// must not be able to clear the replacement's slot.
	second, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "echo two"})
	if err != nil {
		t.Fatalf("Spawn second: %v", err)
	}
	testutil.RequireReceive(t, drain(second), 5*time.Second, "second process should exit")

	supervisor.Reap(1, first)
	if !supervisor.Stop(1) {
		t.Error("stale reap should not have cleared the current process")
	}
}

func TestPTYMergesOutput(t *testing.T) {
	supervisor := newSupervisor(t)

	proc, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "echo pty-hello; echo pty-err >&2", PTY: true})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if proc.Stderr() != nil {
		t.Error("PTY process should have no separate stderr stream")
	}

	// The master read errors with EIO once the child exits; whatever
	// was read before that is the output.
	output, _ := io.ReadAll(proc.Stdout())
	if !strings.Contains(string(output), "pty-hello") {
		t.Errorf("output %q should contain stdout text", output)
	}
	if !strings.Contains(string(output), "pty-err") {
		t.Errorf("output %q should contain stderr text", output)
	}

	if code, _ := proc.Wait(); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
	supervisor.Reap(1, proc)
}

func TestStopAll(t *testing.T) {
	supervisor := newSupervisor(t)

	first, err := supervisor.Spawn(context.Background(), 1, classify.Plan{Command: "sleep 30"})
	if err != nil {
		t.Fatalf("Spawn sender 1: %v", err)
	}
	second, err := supervisor.Spawn(context.Background(), 2, classify.Plan{Command: "sleep 30"})
	if err != nil {
		t.Fatalf("Spawn sender 2: %v", err)
	}
	firstExit := drain(first)
	secondExit := drain(second)

	supervisor.StopAll()

	testutil.RequireReceive(t, firstExit, 5*time.Second, "sender 1 process should exit")
	testutil.RequireReceive(t, secondExit, 5*time.Second, "sender 2 process should exit")
	if supervisor.Stop(1) || supervisor.Stop(2) {
		t.Error("StopAll should have cleared every session slot")
	}
}
