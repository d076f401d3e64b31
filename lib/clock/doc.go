// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock time behind an injectable
// interface so that timing-sensitive code can be tested without
// sleeping.
//
// The output streamer flushes on an update-interval ticker and enforces
// plan timeouts; the process supervisor waits out a termination grace
// window; the dispatcher timestamps audit entries. All of them take a
// Clock rather than calling the time package directly. Production
// wiring passes Real(); tests pass Fake() and drive time with Advance.
//
// A FakeClock only moves when Advance is called, so a test that wants a
// ticker to fire must first be sure the code under test has registered
// it. WaitForTimers blocks until the given number of waiters exist,
// closing the race between goroutine startup and the first Advance:
//
//	fake := clock.Fake(time.Unix(1700000000, 0))
//	go streamer.Stream(ctx, process, sink, plan)
//	fake.WaitForTimers(1)
//	fake.Advance(5 * time.Second) // one flush tick, deterministically
package clock
