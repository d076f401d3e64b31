// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for sensitive material:
// the Telegram bot token, the shared authentication password, and the
// webhook secret token.
//
// Buffer allocates memory outside the Go heap via mmap(MAP_ANONYMOUS),
// locks it into physical RAM via mlock (no swap), and excludes it from
// core dumps via madvise(MADV_DONTDUMP). Close zeros, unlocks, and
// unmaps the region. Because the garbage collector never sees the
// allocation, it cannot copy or relocate the secret, so zeroing on
// Close actually destroys every copy this process made.
//
// Secrets are read from files (or stdin) with ReadFromPath and compared
// in constant time with Equal, so neither the token nor the password
// ever sits in a heap string longer than an API boundary requires.
package secret
