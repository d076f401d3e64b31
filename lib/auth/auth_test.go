// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/seedfourtytwo/telegramshell/lib/secret"
)

func newTestAuthenticator(t *testing.T, storedSecret string, allowed ...int64) *Authenticator {
	t.Helper()

	buffer, err := secret.NewFromBytes([]byte(storedSecret))
	if err != nil {
		t.Fatalf("secret.NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })

	authenticator, err := New(Config{AllowedUsers: allowed, Secret: buffer})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return authenticator
}

func TestAuthenticatePlaintext(t *testing.T) {
	authenticator := newTestAuthenticator(t, "hunter2", 100)

	if authenticator.IsAuthenticated(100) {
		t.Fatal("sender authenticated before presenting the secret")
	}
	if authenticator.Authenticate(100, "wrong") {
		t.Fatal("wrong secret accepted")
	}
	if authenticator.IsAuthenticated(100) {
		t.Fatal("failed attempt flipped the authenticated flag")
	}
	if !authenticator.Authenticate(100, "hunter2") {
		t.Fatal("correct secret rejected")
	}
	if !authenticator.IsAuthenticated(100) {
		t.Fatal("authenticated flag not set after success")
	}
}

func TestAuthenticateBcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword: %v", err)
	}

	authenticator := newTestAuthenticator(t, string(hash), 100)

	if authenticator.Authenticate(100, "wrong") {
		t.Fatal("wrong password accepted against bcrypt hash")
	}
	if !authenticator.Authenticate(100, "hunter2") {
		t.Fatal("correct password rejected against bcrypt hash")
	}
}

func TestUnlistedSenderNeverAuthenticates(t *testing.T) {
	authenticator := newTestAuthenticator(t, "hunter2", 100)

	if authenticator.IsAllowed(200) {
		t.Fatal("unlisted sender reported as allowed")
	}
	if authenticator.Authenticate(200, "hunter2") {
		t.Fatal("unlisted sender authenticated with the correct secret")
	}
	if authenticator.IsAuthenticated(200) {
		t.Fatal("unlisted sender recorded as authenticated")
	}
}

func TestEmptyAllowListLocksGateway(t *testing.T) {
	authenticator := newTestAuthenticator(t, "hunter2")

	if authenticator.IsAllowed(1) {
		t.Fatal("empty allow-list admitted a sender")
	}
	if authenticator.Authenticate(1, "hunter2") {
		t.Fatal("empty allow-list authenticated a sender")
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Config{AllowedUsers: []int64{1}}); err == nil {
		t.Fatal("New accepted a nil secret")
	}
}

func TestAuthenticationStateIsPerSender(t *testing.T) {
	authenticator := newTestAuthenticator(t, "hunter2", 100, 200)

	if !authenticator.Authenticate(100, "hunter2") {
		t.Fatal("correct secret rejected")
	}
	if authenticator.IsAuthenticated(200) {
		t.Fatal("one sender's authentication leaked to another")
	}
}
