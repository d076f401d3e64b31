// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package auditlog

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Entry is one dispatched command.
type Entry struct {
	// Time is when the command was dispatched.
	Time time.Time

	// SenderID is the transport identity that sent the command.
	SenderID int64

	// DisplayName is the sender's human-readable name, possibly empty.
	DisplayName string

	// Command is the raw command text as received.
	Command string
}

// Log appends command entries to a file. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	file *os.File
}

// Open opens (creating if needed) the audit file for appending. The
// file is created operator-readable only.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Log{file: file}, nil
}

// Record appends one entry:
//
//	[2026-03-14 09:30:00] User 123456 (alice): ls -la
//
// The timestamp is formatted in the entry's own location. Newlines
// inside the command are escaped so the one-line-per-entry format
// holds for multi-line input.
func (l *Log) Record(entry Entry) error {
	command := strings.ReplaceAll(entry.Command, "\n", `\n`)

	name := entry.DisplayName
	if name == "" {
		name = "unknown"
	}

	line := fmt.Sprintf("[%s] User %d (%s): %s\n",
		entry.Time.Format("2006-01-02 15:04:05"), entry.SenderID, name, command)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.WriteString(line); err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
