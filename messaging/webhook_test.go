// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seedfourtytwo/telegramshell/lib/secret"
	"github.com/seedfourtytwo/telegramshell/lib/testutil"
)

const webhookToken = "webhook-shared-secret"

func newWebhookFixture(t *testing.T) (*WebhookReceiver, *httptest.Server) {
	t.Helper()
	tokenBuffer, err := secret.NewFromBytes([]byte(webhookToken))
	if err != nil {
		t.Fatalf("building secret: %v", err)
	}
	t.Cleanup(func() { tokenBuffer.Close() })

	receiver, err := NewWebhookReceiver(WebhookConfig{
		SecretToken: tokenBuffer,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("building receiver: %v", err)
	}

	server := httptest.NewServer(receiver.Router())
	t.Cleanup(server.Close)
	return receiver, server
}

func postUpdate(t *testing.T, server *httptest.Server, token, body string) *http.Response {
	t.Helper()
	request, err := http.NewRequest(http.MethodPost, server.URL+WebhookPath, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("X-Telegram-Bot-Api-Secret-Token", token)
	}
	response, err := server.Client().Do(request)
	if err != nil {
		t.Fatalf("posting update: %v", err)
	}
	t.Cleanup(func() { response.Body.Close() })
	return response
}

func TestNewWebhookReceiverRequiresSecret(t *testing.T) {
	if _, err := NewWebhookReceiver(WebhookConfig{}); err == nil {
		t.Fatal("NewWebhookReceiver accepted a missing secret token")
	}
}

func TestWebhookDeliversUpdate(t *testing.T) {
	receiver, server := newWebhookFixture(t)

	response := postUpdate(t, server, webhookToken,
		`{"update_id":12,"message":{"message_id":1,"chat":{"id":7},"from":{"id":7,"username":"alice"},"text":"uptime"}}`)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", response.StatusCode)
	}

	update := testutil.RequireReceive(t, receiver.Updates(), 5*time.Second, "waiting for delivery")
	if update.UpdateID != 12 || update.Message == nil || update.Message.Text != "uptime" {
		t.Errorf("update = %+v", update)
	}
	if update.Message.From.DisplayName() != "alice" {
		t.Errorf("display name = %q, want alice", update.Message.From.DisplayName())
	}
}

func TestWebhookRejectsBadSecretToken(t *testing.T) {
	receiver, server := newWebhookFixture(t)

	response := postUpdate(t, server, "wrong-token", `{"update_id":13}`)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", response.StatusCode)
	}

	select {
	case update := <-receiver.Updates():
		t.Errorf("rejected delivery still produced update %+v", update)
	default:
	}
}

func TestWebhookRejectsMissingSecretToken(t *testing.T) {
	_, server := newWebhookFixture(t)

	response := postUpdate(t, server, "", `{"update_id":14}`)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", response.StatusCode)
	}
}

func TestWebhookRejectsUndecodableBody(t *testing.T) {
	receiver, server := newWebhookFixture(t)

	response := postUpdate(t, server, webhookToken, `{broken`)
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", response.StatusCode)
	}

	select {
	case update := <-receiver.Updates():
		t.Errorf("bad body still produced update %+v", update)
	default:
	}
}

func TestWebhookRejectsWrongMethod(t *testing.T) {
	_, server := newWebhookFixture(t)

	response, err := server.Client().Get(server.URL + WebhookPath)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", response.StatusCode)
	}
}
