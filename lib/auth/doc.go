// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth tracks which senders may talk to the gateway and which
// of them have authenticated.
//
// Two gates apply in order: the allow-list (sender ids from
// configuration, checked on every message) and the shared secret
// (presented once per process lifetime via the auth command).
// Authentication state is in-memory only; a restart deauthenticates
// everyone.
//
// The configured secret is either a bcrypt hash (recognized by its $2
// prefix, produced by the hash-password subcommand) or plaintext. Both
// comparisons resist timing probes: bcrypt by construction, plaintext
// via constant-time compare on the secret buffer.
package auth
