// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a structured failure from the Bot API. Callers can use
// errors.As to extract the code:
//
//	var apiErr *messaging.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == messaging.CodeTooManyRequests { ... }
//	}
type APIError struct {
	// Method is the Bot API method that failed.
	Method string

	// Code is Telegram's error_code, following HTTP status semantics.
	Code int

	// Description is the human-readable failure text from the API.
	Description string

	// RetryAfter is the flood-control wait Telegram requested, zero
	// when the API supplied none.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Error codes the Bot API returns. Telegram reuses HTTP status values.
const (
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429
)

// IsAPIError reports whether err is a *APIError with the given code.
func IsAPIError(err error, code int) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
