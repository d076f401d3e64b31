// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// maxPollRetries is the number of consecutive getUpdates failures
// allowed before the watcher gives up. Each retry polls with a short
// hold so the HTTP round-trip itself provides backoff.
const maxPollRetries = 5

// retryPollTimeout is the server-side hold used after a poll error.
const retryPollTimeout = time.Second

// DefaultPollTimeout is the server-side long-poll hold for normal
// getUpdates calls.
const DefaultPollTimeout = 30 * time.Second

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// GetUpdates long-polls for updates at or after offset. The server
// holds the request up to timeout, returning early when updates
// arrive. Only message updates are requested.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	request := getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message"},
	}
	var updates []Update
	if err := c.invoke(ctx, "getUpdates", request, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// WatcherConfig configures an UpdateWatcher.
type WatcherConfig struct {
	// Client issues the getUpdates calls. Required. Its HTTP client
	// must tolerate requests as long as PollTimeout.
	Client *Client

	// PollTimeout is the server-side long-poll hold. Defaults to
	// DefaultPollTimeout.
	PollTimeout time.Duration

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// UpdateWatcher long-polls getUpdates and delivers updates on a
// channel, acknowledging each by advancing the offset. One watcher per
// bot token — Telegram rejects concurrent getUpdates with a 409.
type UpdateWatcher struct {
	client      *Client
	logger      *slog.Logger
	pollTimeout time.Duration
	updates     chan Update
}

// NewUpdateWatcher creates a watcher. Call Run to start polling.
func NewUpdateWatcher(config WatcherConfig) (*UpdateWatcher, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("messaging: Client is required")
	}

	pollTimeout := config.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = DefaultPollTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &UpdateWatcher{
		client:      config.Client,
		logger:      logger,
		pollTimeout: pollTimeout,
		updates:     make(chan Update, 16),
	}, nil
}

// Updates returns the delivery channel. It is closed when Run returns.
func (w *UpdateWatcher) Updates() <-chan Update {
	return w.updates
}

// Run polls until ctx is cancelled, delivering every update in order.
// Returns nil on context cancellation; returns an error only after
// maxPollRetries consecutive poll failures. On transport errors the
// idle connection pool is reset so the next attempt opens a fresh
// socket.
func (w *UpdateWatcher) Run(ctx context.Context) error {
	defer close(w.updates)

	var offset int64
	var retries int
	for {
		if ctx.Err() != nil {
			return nil
		}

		// After an error, poll with a short hold so the retry
		// round-trip is quick.
		timeout := w.pollTimeout
		if retries > 0 {
			timeout = retryPollTimeout
		}

		updates, err := w.client.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			retries++
			w.client.CloseIdleConnections()
			if retries > maxPollRetries {
				return fmt.Errorf("messaging: getUpdates failed %d consecutive times: %w", retries, err)
			}
			w.logger.Warn("update poll failed, retrying",
				"attempt", retries,
				"max_attempts", maxPollRetries,
				"error", err)
			if !w.waitRetry(ctx, err) {
				return nil
			}
			continue
		}
		retries = 0

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			select {
			case w.updates <- update:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// waitRetry honors a flood-control retry-after hint before the next
// poll. Reports false when the context ended during the wait.
func (w *UpdateWatcher) waitRetry(ctx context.Context, err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return true
	}
	w.logger.Warn("flood control, waiting", "retry_after", apiErr.RetryAfter)
	select {
	case <-time.After(apiErr.RetryAfter):
		return true
	case <-ctx.Done():
		return false
	}
}
