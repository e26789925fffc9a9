// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(300 * time.Second)
	if got, want := clock.Now(), epoch.Add(300*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfter(t *testing.T) {
	t.Run("fires at deadline", func(t *testing.T) {
		clock := Fake(epoch)
		channel := clock.After(5 * time.Second)

		clock.Advance(4 * time.Second)
		select {
		case <-channel:
			t.Fatal("After fired before its deadline")
		default:
		}

		clock.Advance(time.Second)
		select {
		case fired := <-channel:
			if !fired.Equal(epoch.Add(5 * time.Second)) {
				t.Errorf("fired at %v, want %v", fired, epoch.Add(5*time.Second))
			}
		default:
			t.Fatal("After did not fire at its deadline")
		}
		if clock.PendingCount() != 0 {
			t.Errorf("PendingCount() = %d after firing, want 0", clock.PendingCount())
		}
	})

	t.Run("non-positive is immediate", func(t *testing.T) {
		clock := Fake(epoch)
		for _, duration := range []time.Duration{0, -time.Second} {
			select {
			case <-clock.After(duration):
			default:
				t.Fatalf("After(%v) not ready immediately", duration)
			}
		}
		if clock.PendingCount() != 0 {
			t.Errorf("PendingCount() = %d, want 0", clock.PendingCount())
		}
	})

	t.Run("one advance fires several", func(t *testing.T) {
		clock := Fake(epoch)
		first := clock.After(time.Second)
		second := clock.After(2 * time.Second)
		later := clock.After(time.Minute)

		clock.Advance(10 * time.Second)
		<-first
		<-second
		select {
		case <-later:
			t.Fatal("later waiter fired early")
		default:
		}
		if clock.PendingCount() != 1 {
			t.Errorf("PendingCount() = %d, want 1", clock.PendingCount())
		}
	})
}

func TestFakeWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})

	go func() {
		<-clock.After(30 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	clock.Advance(30 * time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock
		t.Fatal("goroutine did not observe the advanced clock")
	}
}

func TestRealAfter(t *testing.T) {
	select {
	case <-Real().After(0):
	case <-time.After(5 * time.Second): //nolint:realclock
		t.Fatal("Real().After(0) did not fire")
	}
}
