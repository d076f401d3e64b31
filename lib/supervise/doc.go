// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervise owns the mapping from sender session to the single
// active shell process for that session.
//
// Each spawned command runs as `sh -c <command>` in its own process
// group so the whole tree can be signaled together. A session holds at
// most one process at a time: spawning over a live process first runs
// the full termination sequence (SIGTERM, one-second grace window,
// SIGKILL), and stop clears the session slot unconditionally so a
// vanished process can never block future spawns.
package supervise
