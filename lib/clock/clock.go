// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface used by this project: current time,
// one-shot waits, periodic ticks, and plain sleeps. Code that needs
// time takes a Clock field and never touches the time package
// directly, so tests can substitute Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks on C every d.
	// Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop when done; Stop does
// not close C. C is buffered with capacity 1, so a slow consumer drops
// ticks instead of queueing them, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No ticks are delivered after Stop returns.
func (t *Ticker) Stop() { t.stopFunc() }
