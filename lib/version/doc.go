// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the
// telegramshell binary.
//
// Version information is injected at build time via -ldflags:
//
//	go build -ldflags "-X github.com/seedfourtytwo/telegramshell/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
