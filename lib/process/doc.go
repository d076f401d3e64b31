// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers. It centralizes
// the one legitimate raw-stderr pattern that exists before the
// structured logger is initialized: fatal error reporting from main().
package process
