// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a time.After fallback) so individual tests
// never hang on a channel that a broken subject will never service.
// These helpers are the only place the test suite uses real wall-clock
// timeouts; everything timing-related in the code under test runs on an
// injected fake clock.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
