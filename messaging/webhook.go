// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seedfourtytwo/telegramshell/lib/netutil"
	"github.com/seedfourtytwo/telegramshell/lib/secret"
)

// WebhookPath is the route Telegram POSTs updates to. The same path is
// registered with setWebhook during deployment.
const WebhookPath = "/telegram/webhook"

// secretTokenHeader is echoed by Telegram on every webhook delivery,
// carrying the secret_token supplied to setWebhook.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookConfig configures a WebhookReceiver.
type WebhookConfig struct {
	// SecretToken authenticates deliveries: requests whose header does
	// not match are rejected. Required. Borrowed, not closed.
	SecretToken *secret.Buffer

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// WebhookReceiver decodes Telegram webhook deliveries onto the same
// channel shape the long-poll watcher uses, so the bot's inbound loop
// is identical in both modes.
type WebhookReceiver struct {
	secretToken *secret.Buffer
	logger      *slog.Logger
	updates     chan Update
}

// NewWebhookReceiver creates a receiver. Mount Router on an HTTP
// server and consume Updates.
func NewWebhookReceiver(config WebhookConfig) (*WebhookReceiver, error) {
	if config.SecretToken == nil {
		return nil, fmt.Errorf("messaging: SecretToken is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &WebhookReceiver{
		secretToken: config.SecretToken,
		logger:      logger,
		updates:     make(chan Update, 16),
	}, nil
}

// Updates returns the delivery channel. Unlike the long-poll watcher
// the receiver never closes it; the consumer's context governs
// shutdown.
func (r *WebhookReceiver) Updates() <-chan Update {
	return r.updates
}

// Router returns the route table for the receiver. The caller mounts
// it on its HTTP server.
func (r *WebhookReceiver) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc(WebhookPath, r.handleDelivery).Methods(http.MethodPost)
	return router
}

// handleDelivery authenticates and decodes one update. Telegram
// redelivers on any non-2xx answer, so a full queue returns 503 to get
// the update again later; a bad token or body gets a 4xx because those
// requests are not worth retrying whoever sent them.
func (r *WebhookReceiver) handleDelivery(w http.ResponseWriter, request *http.Request) {
	token := request.Header.Get(secretTokenHeader)
	if !r.secretToken.Equal([]byte(token)) {
		r.logger.Warn("webhook delivery with bad secret token",
			"remote_addr", request.RemoteAddr)
		http.Error(w, "bad secret token", http.StatusUnauthorized)
		return
	}

	var update Update
	if err := netutil.DecodeRequest(request.Body, &update); err != nil {
		r.logger.Warn("undecodable webhook delivery", "error", err)
		http.Error(w, "bad update body", http.StatusBadRequest)
		return
	}

	select {
	case r.updates <- update:
		w.WriteHeader(http.StatusOK)
	case <-request.Context().Done():
		// Consumer gone or client hung up; let Telegram redeliver.
		http.Error(w, "not consumed", http.StatusServiceUnavailable)
	}
}
