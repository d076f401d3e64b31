// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/seedfourtytwo/telegramshell/lib/auth"
	"github.com/seedfourtytwo/telegramshell/lib/dispatch"
	"github.com/seedfourtytwo/telegramshell/lib/service"
	"github.com/seedfourtytwo/telegramshell/lib/supervise"
	"github.com/seedfourtytwo/telegramshell/messaging"
)

const startText = `Welcome to Secure Shell Bot!
Please authenticate using /auth <password>

Tips:
1. Open multiple chat windows with this bot
2. Just type commands directly: ls -la
3. Or prefix with /: /ls -la
4. For logs: tail -f /path/to/log
5. Use /stop to end a running command`

const helpText = `Usage Examples:
- List files: ls -la
- Monitor log: tail -f /var/log/syslog
- System info: htop
- Disk space: df -h
- Process list: ps aux

You can also prefix commands with / if you prefer:
/ls -la, /tail -f /var/log/syslog, etc.

Continuous commands (tail -f, ping, top) stream output in batches
until they finish, time out, or you send /stop.`

// bot owns the update loop: it answers the four control verbs inline
// and hands everything else to the dispatcher, one goroutine per
// command so sessions never block each other.
type bot struct {
	logger     *slog.Logger
	client     *messaging.Client
	transport  dispatch.Transport
	auth       *auth.Authenticator
	supervisor *supervise.Supervisor
	dispatcher *dispatch.Dispatcher

	// webhook switches update delivery from long polling to an HTTP
	// receiver on webhookAddr. Nil means polling.
	webhook     *messaging.WebhookReceiver
	webhookAddr string
	pollTimeout time.Duration

	// username is the bot's own handle, learned from getMe. Clients
	// append it to commands ("/stop@name"); the router strips it.
	username string

	handlers sync.WaitGroup
}

// botConfig carries the bot's collaborators.
type botConfig struct {
	Logger      *slog.Logger
	Client      *messaging.Client
	Transport   dispatch.Transport
	Auth        *auth.Authenticator
	Supervisor  *supervise.Supervisor
	Dispatcher  *dispatch.Dispatcher
	Webhook     *messaging.WebhookReceiver
	WebhookAddr string
	PollTimeout time.Duration
}

// newBot builds a bot. All collaborators except Logger and Webhook are
// required; WebhookAddr is required when Webhook is set.
func newBot(config botConfig) (*bot, error) {
	var errs []error
	if config.Client == nil {
		errs = append(errs, errors.New("Client is required"))
	}
	if config.Transport == nil {
		errs = append(errs, errors.New("Transport is required"))
	}
	if config.Auth == nil {
		errs = append(errs, errors.New("Auth is required"))
	}
	if config.Supervisor == nil {
		errs = append(errs, errors.New("Supervisor is required"))
	}
	if config.Dispatcher == nil {
		errs = append(errs, errors.New("Dispatcher is required"))
	}
	if config.Webhook != nil && config.WebhookAddr == "" {
		errs = append(errs, errors.New("WebhookAddr is required with Webhook"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("bot: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &bot{
		logger:      logger,
		client:      config.Client,
		transport:   config.Transport,
		auth:        config.Auth,
		supervisor:  config.Supervisor,
		dispatcher:  config.Dispatcher,
		webhook:     config.Webhook,
		webhookAddr: config.WebhookAddr,
		pollTimeout: config.PollTimeout,
	}, nil
}

// run verifies the token, starts update delivery, and processes
// updates until the context is cancelled or delivery fails.
func (b *bot) run(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verifying bot token: %w", err)
	}
	b.username = me.Username
	b.logger.Info("connected to bot api", "username", me.Username, "bot_id", me.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, sourceDone, err := b.startUpdates(runCtx)
	if err != nil {
		return err
	}

	// Shutdown order: stop accepting updates, kill every supervised
	// process group, then wait for the handlers that were streaming
	// them to send their final replies.
	defer func() {
		cancel()
		b.supervisor.StopAll()
		b.handlers.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("shutting down")
			return nil
		case err := <-sourceDone:
			if err != nil {
				return fmt.Errorf("update delivery stopped: %w", err)
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				// The source closed its channel; its run result
				// follows on sourceDone.
				if err := <-sourceDone; err != nil {
					return fmt.Errorf("update delivery stopped: %w", err)
				}
				return nil
			}
			b.handleUpdate(runCtx, update)
		}
	}
}

// startUpdates starts the configured update source. The returned
// channel delivers updates; sourceDone carries the source's final
// error once it stops.
func (b *bot) startUpdates(ctx context.Context) (<-chan messaging.Update, <-chan error, error) {
	sourceDone := make(chan error, 1)

	if b.webhook != nil {
		server := service.NewHTTPServer(service.HTTPServerConfig{
			Address: b.webhookAddr,
			Handler: b.webhook.Router(),
			Logger:  b.logger,
		})
		go func() { sourceDone <- server.Serve(ctx) }()
		return b.webhook.Updates(), sourceDone, nil
	}

	watcher, err := messaging.NewUpdateWatcher(messaging.WatcherConfig{
		Client:      b.client,
		PollTimeout: b.pollTimeout,
		Logger:      b.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	go func() { sourceDone <- watcher.Run(ctx) }()
	return watcher.Updates(), sourceDone, nil
}

// handleUpdate routes one update: control verbs are answered inline,
// commands run on their own goroutine so one session's long command
// never delays another session's updates.
func (b *bot) handleUpdate(ctx context.Context, update messaging.Update) {
	message := update.Message
	if message == nil || message.From == nil || message.Text == "" {
		return
	}
	// Sessions are private chats; there the chat id and the sender id
	// coincide. Group traffic is ignored rather than refused so the
	// bot cannot be made to spam a group.
	if message.Chat.Type != "private" {
		b.logger.Debug("ignoring non-private message",
			"chat_id", message.Chat.ID,
			"chat_type", message.Chat.Type)
		return
	}

	senderID := message.From.ID
	if verb, args, ok := b.controlVerb(message.Text); ok {
		b.handleControl(ctx, senderID, verb, args)
		return
	}

	displayName := message.From.DisplayName()
	b.handlers.Add(1)
	go func() {
		defer b.handlers.Done()
		// One session's panic must not take down the other sessions'
		// processes; the supervisor slot is reclaimed by the next
		// spawn or stop.
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("panic handling command",
					"sender_id", senderID,
					"panic", r)
			}
		}()
		b.dispatcher.Handle(ctx, dispatch.Message{
			SenderID:    senderID,
			DisplayName: displayName,
			Text:        message.Text,
		})
	}()
}

// controlVerb splits a control command from its arguments. Both
// "/stop" and "stop" forms are answered; a "@botname" suffix (added
// by clients when tapping command suggestions) is stripped. Anything
// else is a shell command.
func (b *bot) controlVerb(text string) (verb, args string, ok bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "/")
	verb, args = splitFirst(trimmed)
	verb = strings.ToLower(verb)
	if b.username != "" {
		verb = strings.TrimSuffix(verb, "@"+strings.ToLower(b.username))
	}
	switch verb {
	case "start", "auth", "help", "stop":
		return verb, strings.TrimSpace(args), true
	}
	return "", "", false
}

// handleControl answers one control verb. /start and /auth work for
// any allowed sender; /help and /stop require authentication first,
// like commands do.
func (b *bot) handleControl(ctx context.Context, senderID int64, verb, args string) {
	if !b.auth.IsAllowed(senderID) {
		b.logger.Warn("control verb from unlisted sender",
			"sender_id", senderID,
			"verb", verb)
		b.reply(ctx, senderID, "Unauthorized access denied.")
		return
	}

	switch verb {
	case "start":
		b.reply(ctx, senderID, startText)

	case "auth":
		if args == "" {
			b.reply(ctx, senderID, "Usage: /auth <password>")
			return
		}
		if b.auth.Authenticate(senderID, args) {
			b.reply(ctx, senderID, "Authentication successful! You can now run commands directly.")
		} else {
			b.reply(ctx, senderID, "Invalid password.")
		}

	case "help":
		if !b.requireAuthenticated(ctx, senderID) {
			return
		}
		b.reply(ctx, senderID, helpText)

	case "stop":
		if !b.requireAuthenticated(ctx, senderID) {
			return
		}
		if b.supervisor.Stop(senderID) {
			b.reply(ctx, senderID, "Process stopped.")
		} else {
			b.reply(ctx, senderID, "No running process to stop.")
		}
	}
}

func (b *bot) requireAuthenticated(ctx context.Context, senderID int64) bool {
	if b.auth.IsAuthenticated(senderID) {
		return true
	}
	b.reply(ctx, senderID, "Please authenticate first using /auth <password>")
	return false
}

func (b *bot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := b.transport.Send(ctx, chatID, text); err != nil {
		b.logger.Warn("sending reply", "chat_id", chatID, "error", err)
	}
}

// splitFirst splits text at the first whitespace rune.
func splitFirst(text string) (first, rest string) {
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return text[:i], text[i+1:]
		}
	}
	return text, ""
}

// telegramTransport adapts the Bot API client to the dispatcher's
// Transport interface.
type telegramTransport struct {
	client *messaging.Client
}

func (t *telegramTransport) Send(ctx context.Context, chatID int64, text string) (int64, error) {
	message, err := t.client.SendMessage(ctx, chatID, text, messaging.SendOptions{})
	if err != nil {
		return 0, err
	}
	return message.MessageID, nil
}

func (t *telegramTransport) SendVerbatim(ctx context.Context, chatID int64, text string) (int64, error) {
	message, err := t.client.SendMessage(ctx, chatID, text, messaging.SendOptions{Verbatim: true})
	if err != nil {
		return 0, err
	}
	return message.MessageID, nil
}

func (t *telegramTransport) Edit(ctx context.Context, chatID int64, messageID int64, text string) error {
	return t.client.EditMessageText(ctx, chatID, messageID, text, messaging.SendOptions{})
}
