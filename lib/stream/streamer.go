// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/seedfourtytwo/telegramshell/lib/classify"
	"github.com/seedfourtytwo/telegramshell/lib/clock"
)

const (
	// DefaultChunkThreshold is the buffered-output size that triggers
	// a flush between interval ticks.
	DefaultChunkThreshold = 3500

	// DefaultUpdateInterval is the flush cadence for continuous plans
	// that do not set their own.
	DefaultUpdateInterval = 5 * time.Second

	// MaxChunkBytes is the hard per-message payload limit. It leaves
	// room under the transport's 4096-byte ceiling for the formatting
	// the sink adds around a chunk.
	MaxChunkBytes = 4000

	// maxLineBytes bounds a single scanned line. A stream producing a
	// longer line (binary garbage, not command output) ends early.
	maxLineBytes = 256 * 1024

	lineQueueDepth = 256
	readBufferSize = 4096
)

// Outcome is the terminal condition that ended a stream.
type Outcome int

const (
	// OutcomeExited: the process exited on its own.
	OutcomeExited Outcome = iota

	// OutcomeTimedOut: the plan's timeout elapsed and the process was
	// terminated. A normal end for continuous commands, not an error.
	OutcomeTimedOut

	// OutcomeStopped: an explicit stop, a replacement spawn, or
	// shutdown terminated the process.
	OutcomeStopped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExited:
		return "exited"
	case OutcomeTimedOut:
		return "timed out"
	case OutcomeStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink delivers one chunk of output text to the session's transport.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Process is the supervised-process surface the streamer drives. A
// *supervise.Process satisfies it.
type Process interface {
	Stdout() io.Reader
	Stderr() io.Reader
	Wait() (int, error)
	Terminate()
	StopRequested() bool
}

// line is one unit from a reader goroutine: a scanned text line, or a
// raw PTY fragment.
type line struct {
	text   string
	stderr bool
	raw    bool
}

// Streamer turns process output into sink chunks. Safe for concurrent
// use; each Stream call is independent.
type Streamer struct {
	logger         *slog.Logger
	clock          clock.Clock
	chunkThreshold int
	updateInterval time.Duration
	mergeStderr    bool
}

// Config configures a Streamer. Zero values take defaults.
type Config struct {
	// Logger receives stream diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock drives flush timing. Defaults to the real clock.
	Clock clock.Clock

	// ChunkThreshold is the buffered size that forces a flush.
	// Defaults to DefaultChunkThreshold.
	ChunkThreshold int

	// UpdateInterval is the flush cadence for plans without their
	// own. Defaults to DefaultUpdateInterval.
	UpdateInterval time.Duration

	// MergeStderr drops the "!" tag on stderr lines.
	MergeStderr bool
}

// New returns a Streamer.
func New(cfg Config) *Streamer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = DefaultChunkThreshold
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	return &Streamer{
		logger:         cfg.Logger,
		clock:          cfg.Clock,
		chunkThreshold: cfg.ChunkThreshold,
		updateInterval: cfg.UpdateInterval,
		mergeStderr:    cfg.MergeStderr,
	}
}

// Stream pumps the process's output into the sink until a terminal
// condition, flushes whatever remains, reaps the process, and reports
// which condition fired. The caller must still clear the supervisor's
// session slot afterwards.
//
// Chunk delivery is fire-and-forget: a transport failure is logged and
// the stream continues.
func (s *Streamer) Stream(ctx context.Context, proc Process, sink Sink, plan classify.Plan) (Outcome, error) {
	lines := make(chan line, lineQueueDepth)
	var readers sync.WaitGroup

	readers.Add(1)
	go func() {
		defer readers.Done()
		if plan.PTY {
			s.readRaw(proc.Stdout(), lines)
		} else {
			s.readLines(proc.Stdout(), false, lines)
		}
	}()
	if stderr := proc.Stderr(); stderr != nil {
		readers.Add(1)
		go func() {
			defer readers.Done()
			s.readLines(stderr, true, lines)
		}()
	}
	go func() {
		readers.Wait()
		close(lines)
	}()

	if plan.Continuous {
		return s.continuous(ctx, proc, sink, plan, lines)
	}
	return s.oneShot(ctx, proc, sink, lines)
}

// oneShot buffers the full output, then delivers it split into as many
// chunks as it needs, in order.
func (s *Streamer) oneShot(ctx context.Context, proc Process, sink Sink, lines <-chan line) (Outcome, error) {
	var buffer bytes.Buffer
	stopped := false

streaming:
	for {
		select {
		case ln, ok := <-lines:
			if !ok {
				break streaming
			}
			s.appendLine(&buffer, ln)
		case <-ctx.Done():
			stopped = true
			proc.Terminate()
			break streaming
		}
	}
	for ln := range lines {
		s.appendLine(&buffer, ln)
	}

	// The final delivery outlives the caller's context so shutdown
	// does not eat output that was already produced.
	sendCtx := context.WithoutCancel(ctx)
	for _, chunk := range splitChunks(buffer.String(), MaxChunkBytes) {
		s.send(sendCtx, sink, chunk)
	}

	exitCode, waitErr := proc.Wait()
	outcome := OutcomeExited
	if stopped || proc.StopRequested() {
		outcome = OutcomeStopped
	}
	s.logger.Debug("one-shot stream finished",
		"outcome", outcome.String(),
		"exit_code", exitCode,
		"output_bytes", buffer.Len())
	return outcome, waitErr
}

// continuous flushes on the plan's cadence, on the chunk threshold,
// and once more after the terminal condition.
func (s *Streamer) continuous(ctx context.Context, proc Process, sink Sink, plan classify.Plan, lines <-chan line) (Outcome, error) {
	interval := plan.UpdateInterval
	if interval <= 0 {
		interval = s.updateInterval
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if plan.Timeout > 0 {
		deadline = s.clock.After(plan.Timeout)
	}

	var buffer bytes.Buffer
	flush := func(sendCtx context.Context) {
		if buffer.Len() == 0 {
			return
		}
		s.send(sendCtx, sink, truncateRecent(buffer.String(), MaxChunkBytes))
		buffer.Reset()
	}

	timedOut := false
	stopped := false

streaming:
	for {
		select {
		case ln, ok := <-lines:
			if !ok {
				break streaming
			}
			s.appendLine(&buffer, ln)
			if buffer.Len() >= s.chunkThreshold {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-deadline:
			timedOut = true
			proc.Terminate()
			break streaming
		case <-ctx.Done():
			stopped = true
			proc.Terminate()
			break streaming
		}
	}

	// The process is dead or dying; both readers end on EOF and close
	// the queue. Collect what they had in flight.
	for ln := range lines {
		s.appendLine(&buffer, ln)
	}
	flush(context.WithoutCancel(ctx))

	exitCode, waitErr := proc.Wait()
	outcome := OutcomeExited
	switch {
	case timedOut:
		outcome = OutcomeTimedOut
	case stopped || proc.StopRequested():
		outcome = OutcomeStopped
	}
	s.logger.Debug("continuous stream finished",
		"outcome", outcome.String(),
		"exit_code", exitCode)
	return outcome, waitErr
}

// appendLine adds one reader unit to the buffer: raw PTY fragments
// verbatim, scanned lines newline-terminated with stderr tagged.
func (s *Streamer) appendLine(buffer *bytes.Buffer, ln line) {
	if ln.raw {
		buffer.WriteString(ln.text)
		return
	}
	if ln.stderr && !s.mergeStderr {
		buffer.WriteString("! ")
	}
	buffer.WriteString(ln.text)
	buffer.WriteByte('\n')
}

// send delivers one chunk. Errors are logged, never fatal: one lost
// chunk must not end the stream.
func (s *Streamer) send(ctx context.Context, sink Sink, text string) {
	if err := sink.Send(ctx, text); err != nil {
		s.logger.Warn("sending output chunk",
			"error", err,
			"bytes", len(text))
	}
}

// readLines scans one pipe line by line into the queue. Any read or
// scan error ends the stream the same way EOF does.
func (s *Streamer) readLines(r io.Reader, stderr bool, lines chan<- line) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		lines <- line{text: scanner.Text(), stderr: stderr}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("output stream ended", "stderr", stderr, "error", err)
	}
}

// readRaw forwards PTY output as-is: terminal frames are not
// line-structured. The master read erroring (EIO once the child has
// exited) is the PTY's EOF.
func (s *Streamer) readRaw(r io.Reader, lines chan<- line) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lines <- line{text: string(buf[:n]), raw: true}
		}
		if err != nil {
			return
		}
	}
}

// splitChunks splits text into limit-sized pieces at rune boundaries.
func splitChunks(text string, limit int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			// Not UTF-8 at all; split raw.
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return append(chunks, text)
}

// truncateRecent keeps the most recent limit bytes, starting at a rune
// boundary.
func truncateRecent(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := len(text) - limit
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return text[cut:]
}
