// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch turns one inbound operator message into one command
// execution: authentication gate, audit record, classification, spawn,
// stream, outcome report. Every failure is converted to a reply; none
// escape the handler.
package dispatch
