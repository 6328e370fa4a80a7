// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnlyAtDeadline(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(10 * time.Second)

	fake.Advance(9 * time.Second)
	select {
	case <-channel:
		t.Fatal("timer fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(10 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, epoch.Add(10*time.Second))
		}
	default:
		t.Fatal("timer did not fire at its deadline")
	}
}

func TestFakeTickerRepeatsAndStops(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(30 * time.Second)

	for i := 0; i < 3; i++ {
		fake.Advance(30 * time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	fake.Advance(30 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-fake.After(time.Minute)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Minute)
	<-done
}

func TestFakeNowAdvances(t *testing.T) {
	fake := Fake(epoch)
	fake.Advance(90 * time.Second)
	if got := fake.Now(); !got.Equal(epoch.Add(90 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(90*time.Second))
	}
}
