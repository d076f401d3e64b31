// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/seedfourtytwo/telegramshell/lib/auditlog"
	"github.com/seedfourtytwo/telegramshell/lib/auth"
	"github.com/seedfourtytwo/telegramshell/lib/classify"
	"github.com/seedfourtytwo/telegramshell/lib/clock"
	"github.com/seedfourtytwo/telegramshell/lib/stream"
	"github.com/seedfourtytwo/telegramshell/lib/supervise"
)

// reservedVerbs are answered by the bot's command router, never
// dispatched to a shell. The router filters them first; the check here
// is the backstop.
var reservedVerbs = map[string]struct{}{
	"start": {},
	"auth":  {},
	"help":  {},
	"stop":  {},
}

// Message is one inbound operator message.
type Message struct {
	// SenderID identifies the operator's chat. It keys the session.
	SenderID int64

	// DisplayName is the sender's human-readable name, for the audit
	// log. May be empty.
	DisplayName string

	// Text is the raw message text.
	Text string
}

// Transport is the outbound half of the messaging layer.
type Transport interface {
	// Send delivers a plain notice and returns the transport's id for
	// the new message.
	Send(ctx context.Context, chatID int64, text string) (int64, error)

	// SendVerbatim delivers preformatted output that must not be
	// reinterpreted as rich text.
	SendVerbatim(ctx context.Context, chatID int64, text string) (int64, error)

	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, chatID int64, messageID int64, text string) error
}

// Config carries the dispatcher's collaborators.
type Config struct {
	// Logger receives dispatch diagnostics. Defaults to slog.Default.
	Logger *slog.Logger

	// Clock timestamps audit entries. Defaults to the real clock.
	Clock clock.Clock

	// Auth answers the allow-list and authentication questions.
	Auth *auth.Authenticator

	// Classifier derives the execution plan for a command.
	Classifier *classify.Classifier

	// Supervisor owns the per-session process slots.
	Supervisor *supervise.Supervisor

	// Streamer pulls process output into the transport.
	Streamer *stream.Streamer

	// Audit records every dispatched command.
	Audit *auditlog.Log

	// Transport delivers replies.
	Transport Transport
}

// Dispatcher executes one inbound message end to end. Safe for
// concurrent use; each message is independent.
type Dispatcher struct {
	logger     *slog.Logger
	clock      clock.Clock
	auth       *auth.Authenticator
	classifier *classify.Classifier
	supervisor *supervise.Supervisor
	streamer   *stream.Streamer
	audit      *auditlog.Log
	transport  Transport
}

// New builds a Dispatcher. All collaborators except Logger and Clock
// are required.
func New(config Config) (*Dispatcher, error) {
	var errs []error
	if config.Auth == nil {
		errs = append(errs, errors.New("Auth is required"))
	}
	if config.Classifier == nil {
		errs = append(errs, errors.New("Classifier is required"))
	}
	if config.Supervisor == nil {
		errs = append(errs, errors.New("Supervisor is required"))
	}
	if config.Streamer == nil {
		errs = append(errs, errors.New("Streamer is required"))
	}
	if config.Audit == nil {
		errs = append(errs, errors.New("Audit is required"))
	}
	if config.Transport == nil {
		errs = append(errs, errors.New("Transport is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Dispatcher{
		logger:     logger,
		clock:      clk,
		auth:       config.Auth,
		classifier: config.Classifier,
		supervisor: config.Supervisor,
		streamer:   config.Streamer,
		audit:      config.Audit,
		transport:  config.Transport,
	}, nil
}

// Handle runs one inbound message to completion: gate, audit, classify,
// spawn, stream, report. It blocks until the command finishes and never
// returns an error; every failure becomes a reply or a log line.
func (d *Dispatcher) Handle(ctx context.Context, msg Message) {
	if !d.auth.IsAllowed(msg.SenderID) {
		d.logger.Warn("message from unlisted sender", "sender_id", msg.SenderID)
		d.notify(ctx, msg.SenderID, "Unauthorized access denied.")
		return
	}
	if !d.auth.IsAuthenticated(msg.SenderID) {
		d.notify(ctx, msg.SenderID, "Please authenticate first using /auth <password>")
		return
	}

	// Mobile clients prepend the command marker; the shell never sees
	// it. Only one marker is stripped so "//usr/bin/x" stays a path.
	text := strings.TrimSpace(msg.Text)
	text = strings.TrimPrefix(text, "/")
	if text == "" {
		return
	}
	verb := strings.ToLower(firstToken(text))
	if _, reserved := reservedVerbs[verb]; reserved {
		return
	}

	if err := d.audit.Record(auditlog.Entry{
		Time:        d.clock.Now(),
		SenderID:    msg.SenderID,
		DisplayName: msg.DisplayName,
		Command:     text,
	}); err != nil {
		d.logger.Error("recording audit entry", "sender_id", msg.SenderID, "error", err)
	}

	plan := d.classifier.Classify(text)

	proc, err := d.supervisor.Spawn(ctx, msg.SenderID, plan)
	if err != nil {
		d.logger.Error("spawning command",
			"sender_id", msg.SenderID,
			"command", plan.Command,
			"error", err)
		d.notify(ctx, msg.SenderID, fmt.Sprintf("Error executing command: %v", err))
		return
	}

	// Continuous commands get a status line up front, edited to the
	// final outcome when the run ends.
	var statusID int64
	if plan.Continuous {
		statusID, err = d.transport.Send(ctx, msg.SenderID, runningNotice(plan))
		if err != nil {
			d.logger.Warn("sending status line", "sender_id", msg.SenderID, "error", err)
			statusID = 0
		}
	}

	sink := &chunkSink{transport: d.transport, chatID: msg.SenderID}
	outcome, streamErr := d.streamer.Stream(ctx, proc, sink, plan)
	d.supervisor.Reap(msg.SenderID, proc)
	if streamErr != nil {
		// The process is already reaped; Stop clears any slot state a
		// partial failure left behind.
		d.supervisor.Stop(msg.SenderID)
		d.logger.Error("streaming command output",
			"sender_id", msg.SenderID,
			"command", plan.Command,
			"error", streamErr)
		d.notify(ctx, msg.SenderID, fmt.Sprintf("Error executing command: %v", streamErr))
		return
	}

	// The run is over; its final report must not be cut off by the
	// same cancellation that ended it.
	d.report(context.WithoutCancel(ctx), msg.SenderID, plan, outcome, statusID, sink.attempted)
}

// report delivers the end-of-run message: the edited status line for
// continuous commands, the no-output notice for silent one-shots.
func (d *Dispatcher) report(ctx context.Context, chatID int64, plan classify.Plan, outcome stream.Outcome, statusID int64, attempted int) {
	if plan.Continuous {
		text := finalNotice(plan, outcome)
		if statusID != 0 {
			err := d.transport.Edit(ctx, chatID, statusID, text)
			if err == nil {
				return
			}
			d.logger.Warn("editing status line", "chat_id", chatID, "error", err)
		}
		d.notify(ctx, chatID, text)
		return
	}

	if attempted == 0 && outcome == stream.OutcomeExited {
		d.notify(ctx, chatID, "Command executed successfully (no output)")
	}
}

func (d *Dispatcher) notify(ctx context.Context, chatID int64, text string) {
	if _, err := d.transport.Send(ctx, chatID, text); err != nil {
		d.logger.Warn("sending notice", "chat_id", chatID, "error", err)
	}
}

func runningNotice(plan classify.Plan) string {
	interval := plan.UpdateInterval
	if interval <= 0 {
		interval = stream.DefaultUpdateInterval
	}
	return fmt.Sprintf("Running: %s (updates every %s, /stop to end)", plan.Command, interval)
}

func finalNotice(plan classify.Plan, outcome stream.Outcome) string {
	switch outcome {
	case stream.OutcomeTimedOut:
		return fmt.Sprintf("Timed out after %s: %s", plan.Timeout, plan.Command)
	case stream.OutcomeStopped:
		return fmt.Sprintf("Stopped: %s", plan.Command)
	default:
		return fmt.Sprintf("Completed: %s", plan.Command)
	}
}

// chunkSink forwards stream chunks to the transport as verbatim blocks,
// counting attempts so the dispatcher can tell silence from failure.
type chunkSink struct {
	transport Transport
	chatID    int64
	attempted int
}

func (s *chunkSink) Send(ctx context.Context, text string) error {
	s.attempted++
	_, err := s.transport.SendVerbatim(ctx, s.chatID, text)
	return err
}

func firstToken(text string) string {
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return text[:i]
		}
	}
	return text
}
