// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded HTTP body I/O. Both helpers cap the
// read so a misbehaving peer (the Bot API on the response side, a
// webhook caller on the request side) cannot exhaust memory.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds API response body reads: 16 MB. A getUpdates
// batch tops out around a hundred 4 KB messages; the limit is generous
// so it never interferes with normal operation.
const MaxResponseSize int64 = 16 << 20

// MaxRequestSize bounds inbound webhook body reads: 1 MB. A single
// update carries at most one chat message.
const MaxRequestSize int64 = 1 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeRequest reads an inbound request body (up to MaxRequestSize
// bytes) and JSON-decodes it into v.
func DecodeRequest(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxRequestSize))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	return json.Unmarshal(data, v)
}
