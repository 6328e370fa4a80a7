// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	pending []*fakeTimer
}

// fakeTimer is one registered After or ticker. interval is zero for
// one-shot timers.
type fakeTimer struct {
	deadline time.Time
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

// Fake returns a FakeClock that starts at initial.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// Now returns the fake current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot timer that fires when the clock is
// advanced past now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.register(&fakeTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker registers a periodic timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &fakeTimer{
		deadline: c.now.Add(d),
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.register(timer)
	return &Ticker{
		C: timer.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.stopped = true
		},
	}
}

// register must be called with c.mu held.
func (c *FakeClock) register(timer *fakeTimer) {
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

// Advance moves the clock forward by d. Every timer whose deadline is
// reached fires in deadline order; a ticker spanning several intervals
// fires once per interval, dropping ticks the channel cannot hold.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now

	var due []*fakeTimer
	for {
		fired := false
		var keep []*fakeTimer
		for _, timer := range c.pending {
			if timer.stopped {
				continue
			}
			if timer.deadline.After(target) {
				keep = append(keep, timer)
				continue
			}
			due = append(due, &fakeTimer{deadline: timer.deadline, channel: timer.channel})
			fired = true
			if timer.interval > 0 {
				timer.deadline = timer.deadline.Add(timer.interval)
				keep = append(keep, timer)
			}
		}
		c.pending = keep
		if !fired {
			break
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	for _, timer := range due {
		select {
		case timer.channel <- target:
		default:
		}
	}
}

// WaitForTimers blocks until at least n timers or tickers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.changed.Wait()
	}
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}
