// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/seedfourtytwo/telegramshell/lib/netutil"
	"github.com/seedfourtytwo/telegramshell/lib/secret"
)

// DefaultAPIBaseURL is the public Bot API endpoint. Self-hosted
// bot-api servers substitute their own.
const DefaultAPIBaseURL = "https://api.telegram.org"

// MaxMessageLength is the Bot API's ceiling on message text. Senders
// must chunk below it; the API rejects longer texts with a 400.
const MaxMessageLength = 4096

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// APIBaseURL is the Bot API server. Defaults to DefaultAPIBaseURL.
	APIBaseURL string

	// Token is the bot token. Required. Borrowed for the client's
	// lifetime, not closed by it.
	Token *secret.Buffer

	// HTTPClient is used for all requests. If nil, http.DefaultClient
	// is used. Long-poll callers must leave the client without a
	// global timeout (or set one beyond the poll hold).
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Client is a Telegram Bot API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Bot API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Token == nil {
		return nil, fmt.Errorf("messaging: Token is required")
	}

	baseURL := config.APIBaseURL
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid APIBaseURL %q: %w", baseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests onto fresh TCP connections instead of a
// poisoned pooled one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// invoke performs one Bot API method call: POST JSON to
// {base}/bot{token}/{method}, decode the envelope, unmarshal the
// result into result when non-nil. API failures return *APIError.
//
// The request URL embeds the token, so error messages name only the
// method, never the URL.
func (c *Client) invoke(ctx context.Context, method string, request, result any) error {
	requestURL := c.baseURL + "/bot" + c.token.String() + "/" + method

	var bodyReader io.Reader
	if request != nil {
		encoded, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("messaging: encoding %s request: %w", method, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("messaging: creating %s request: %w", method, err)
	}
	if request != nil {
		httpRequest.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		// The transport error may quote the URL; sanitize so the
		// token never reaches a log line.
		return fmt.Errorf("messaging: %s request failed: %w", method, sanitizeURLError(err))
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("messaging: reading %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("messaging: unexpected %d response to %s: %w",
			response.StatusCode, method, err)
	}

	if !envelope.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if envelope.Parameters != nil && envelope.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = time.Duration(envelope.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("messaging: decoding %s result: %w", method, err)
		}
	}
	return nil
}

// sanitizeURLError strips the URL from a *url.Error, keeping the
// operation and underlying cause. Bot API URLs embed the token.
func sanitizeURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
