// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditlog records every dispatched command to an append-only
// file, one line per entry. The file is an operator artifact with a
// stable format — it is never rotated, truncated, or read back by the
// service.
package auditlog
