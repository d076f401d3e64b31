// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"strings"
)

// Update is one item from getUpdates or a webhook delivery. Exactly one
// of the payload fields is set; the gateway only requests message
// updates, so Message is the one that matters.
type Update struct {
	// UpdateID orders updates; acknowledging an update means polling
	// with offset UpdateID+1.
	UpdateID int64 `json:"update_id"`

	// Message is a new inbound message, nil for other update kinds.
	Message *Message `json:"message,omitempty"`

	// EditedMessage is a message edit. The gateway ignores edits — a
	// command is dispatched once, when first sent.
	EditedMessage *Message `json:"edited_message,omitempty"`
}

// Message is a Telegram chat message, trimmed to the fields the
// gateway reads and the API returns for its own sends.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// Chat identifies the conversation a message belongs to. For the
// one-operator gateway this is always a private chat, whose id equals
// the peer's user id.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User is a Telegram account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the best human-readable name for audit lines:
// the username when set, otherwise the full name.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// apiResponse is Telegram's uniform response envelope.
type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// responseParameters carries Telegram's failure hints.
type responseParameters struct {
	// RetryAfter is the flood-control wait in seconds on a 429.
	RetryAfter int `json:"retry_after,omitempty"`

	// MigrateToChatID reports a group upgraded to a supergroup.
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
}
