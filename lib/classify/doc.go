// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package classify turns raw operator command text into an execution
// plan: the rewritten command line to hand to the shell, whether the
// command is one-shot or continuous, and for continuous commands the
// timeout, output cadence, and terminal requirements.
//
// Classification is driven by three rule tables: verb → canonical path
// rewrites, verbs requiring privilege elevation, and continuous-command
// patterns. The tables are security-relevant configuration, not code:
// DefaultRules returns the shipped tables and LoadRules reads an
// operator-edited JSONC file with the same structure, so redeploying
// the binary never silently changes which commands run under sudo.
//
// Classify is a pure function of the input text and the rules: the
// same input always yields the same plan.
package classify
