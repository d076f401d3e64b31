// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"html"
)

// SendOptions adjust how outbound text is rendered.
type SendOptions struct {
	// Verbatim wraps the text in a preformatted block so the client
	// renders it monospaced and never interprets shell output as
	// rich text. Plain notices leave it false.
	Verbatim bool
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type editMessageTextRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// GetMe returns the bot's own identity. Called at startup to verify
// the token before entering the update loop.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var user User
	if err := c.invoke(ctx, "getMe", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMessage delivers text to a chat and returns the sent message,
// whose id can later be edited. Text must stay within
// MaxMessageLength; the API rejects longer texts.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, options SendOptions) (*Message, error) {
	request := sendMessageRequest{ChatID: chatID, Text: text}
	if options.Verbatim {
		request.Text, request.ParseMode = renderVerbatim(text)
	}

	var message Message
	if err := c.invoke(ctx, "sendMessage", request, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// EditMessageText replaces the text of a previously sent message.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int64, text string, options SendOptions) error {
	request := editMessageTextRequest{ChatID: chatID, MessageID: messageID, Text: text}
	if options.Verbatim {
		request.Text, request.ParseMode = renderVerbatim(text)
	}
	return c.invoke(ctx, "editMessageText", request, nil)
}

// renderVerbatim wraps text in an HTML <pre> block. HTML entities are
// escaped, and Telegram's length limit counts the decoded text, so
// escaping never pushes a bounded chunk over the ceiling.
func renderVerbatim(text string) (rendered, parseMode string) {
	return fmt.Sprintf("<pre>%s</pre>", html.EscapeString(text)), "HTML"
}
