// Copyright 2026 The Telegramshell Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func testStart() time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
}

func TestFakeNowAdvance(t *testing.T) {
	fake := Fake(testStart())
	if got := fake.Now(); !got.Equal(testStart()) {
		t.Fatalf("Now() = %v, want %v", got, testStart())
	}

	fake.Advance(90 * time.Second)
	want := testStart().Add(90 * time.Second)
	if got := fake.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	fake := Fake(testStart())
	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(1 * time.Second)
	select {
	case fired := <-ch:
		want := testStart().Add(5 * time.Second)
		if !fired.Equal(want) {
			t.Fatalf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(testStart())
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTickerFiresPerInterval(t *testing.T) {
	fake := Fake(testStart())
	ticker := fake.NewTicker(2 * time.Second)
	defer ticker.Stop()

	fake.Advance(2 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// An advance spanning three intervals fires three times, but the
	// one-slot buffer holds at most one undelivered tick at a time, so
	// the test drains between advances.
	for tick := 0; tick < 3; tick++ {
		fake.Advance(2 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("ticker did not fire on interval %d", tick)
		}
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(testStart())
	ticker := fake.NewTicker(time.Second)
	ticker.Stop()

	fake.Advance(5 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	fake := Fake(testStart())
	woke := make(chan struct{})

	go func() {
		fake.Sleep(3 * time.Second)
		close(woke)
	}()

	fake.WaitForTimers(1)

	select {
	case <-woke:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	fake.Advance(3 * time.Second)
	select {
	case <-woke:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakeWaitForTimersCountsRegistrations(t *testing.T) {
	fake := Fake(testStart())
	done := make(chan struct{})

	go func() {
		fake.WaitForTimers(2)
		close(done)
	}()

	fake.After(time.Second)
	select {
	case <-done:
		t.Fatal("WaitForTimers(2) returned after one registration")
	case <-time.After(50 * time.Millisecond):
	}

	fake.After(time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForTimers(2) did not return after two registrations")
	}
}
