// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the HTTP serving half of webhook mode: a
// TCP listener with lifecycle management and graceful shutdown,
// handed the webhook receiver's router as its handler.
//
// In polling mode the package is unused; update delivery then runs
// entirely over outbound getUpdates calls.
package service
