// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a hand-rolled Telegram Bot API client covering
// the handful of methods the gateway needs: identity check, message
// send and edit, and update delivery by long poll or webhook.
//
// Every call goes through one invoke path that POSTs JSON to
// {base}/bot{token}/{method} and decodes Telegram's uniform
// {ok, result, error_code, description} envelope. API failures come
// back as *APIError so callers can inspect the code and retry-after
// hint with errors.As.
//
// The bot token lives in an mmap-backed secret buffer and appears only
// in request URLs, never in error messages or logs.
package messaging
