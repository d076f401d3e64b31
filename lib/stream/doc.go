// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream multiplexes a supervised process's output into
// bounded chat-sized chunks.
//
// One-shot commands are read to EOF and delivered once, split
// sequentially across as many chunks as the output needs. Continuous
// commands flush on a timed cadence or when the buffer crosses the
// chunk threshold, and a burst larger than one message keeps its most
// recent bytes: for a monitor, the freshest output wins.
package stream
