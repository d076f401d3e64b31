// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption for credentials at rest: the
// Telegram bot token and the shared authentication password.
//
// A sealed credential file contains base64-encoded age ciphertext
// encrypted to one or more x25519 recipients. At startup the service
// reads its identity file (the age secret key), unseals each credential,
// and holds the plaintext only in mmap-backed secret buffers. The
// keygen and seal subcommands of the telegramshell binary produce the
// identity and the sealed files.
//
// Private keys and unsealed plaintext are returned as *secret.Buffer
// values (locked against swap, excluded from core dumps, zeroed on
// close).
package sealed
