// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the telegramshell YAML
// configuration file.
package config
