// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/seedfourtytwo/telegramshell/lib/secret"
)

// Config carries the authenticator's dependencies.
type Config struct {
	// AllowedUsers are the sender ids permitted to use the gateway.
	// An empty list denies everyone.
	AllowedUsers []int64

	// Secret is the shared authentication secret: either plaintext or
	// a bcrypt hash (detected by the "$2" prefix). Borrowed for the
	// authenticator's lifetime, not closed by it.
	Secret *secret.Buffer

	// Logger records authentication attempts. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// Authenticator answers the three questions the dispatcher asks about
// a sender: is it allowed, has it authenticated, does this secret
// authenticate it. Safe for concurrent use.
type Authenticator struct {
	allowed map[int64]struct{}
	secret  *secret.Buffer
	hashed  bool
	logger  *slog.Logger

	mu            sync.Mutex
	authenticated map[int64]struct{}
}

// New builds an Authenticator. The secret is required.
func New(config Config) (*Authenticator, error) {
	if config.Secret == nil {
		return nil, fmt.Errorf("auth: Secret is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	allowed := make(map[int64]struct{}, len(config.AllowedUsers))
	for _, id := range config.AllowedUsers {
		allowed[id] = struct{}{}
	}

	return &Authenticator{
		allowed:       allowed,
		secret:        config.Secret,
		hashed:        bytes.HasPrefix(config.Secret.Bytes(), []byte("$2")),
		logger:        logger,
		authenticated: make(map[int64]struct{}),
	}, nil
}

// IsAllowed reports whether the sender id is on the allow-list.
func (a *Authenticator) IsAllowed(senderID int64) bool {
	_, ok := a.allowed[senderID]
	return ok
}

// IsAuthenticated reports whether the sender has presented the correct
// secret during this process's lifetime.
func (a *Authenticator) IsAuthenticated(senderID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.authenticated[senderID]
	return ok
}

// Authenticate checks the presented secret for an allowed sender and
// records success. Unlisted senders always fail, without touching the
// secret.
func (a *Authenticator) Authenticate(senderID int64, attempt string) bool {
	if !a.IsAllowed(senderID) {
		a.logger.Warn("authentication attempt from unlisted sender", "sender_id", senderID)
		return false
	}

	attemptBytes := []byte(attempt)
	defer secret.Zero(attemptBytes)

	var ok bool
	if a.hashed {
		ok = bcrypt.CompareHashAndPassword(a.secret.Bytes(), attemptBytes) == nil
	} else {
		ok = a.secret.Equal(attemptBytes)
	}

	if !ok {
		a.logger.Warn("failed authentication attempt", "sender_id", senderID)
		return false
	}

	a.mu.Lock()
	a.authenticated[senderID] = struct{}{}
	a.mu.Unlock()

	a.logger.Info("sender authenticated", "sender_id", senderID)
	return true
}
