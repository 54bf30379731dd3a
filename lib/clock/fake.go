// Copyright 2026 The Switchboard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.registered = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. Time advances only via
// Advance. After channels, tickers, and sleeps block until the clock
// passes their deadline.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	pending    []*waiter
	registered *sync.Cond
}

// waiter is a pending After, Sleep, or Ticker registration.
type waiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers; after firing, the waiter is
	// rescheduled at deadline + interval.
	interval time.Duration

	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock advances past
// the deadline. If d <= 0, the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.pending = append(c.pending, &waiter{
		deadline: c.current.Add(d),
		channel:  channel,
	})
	c.registered.Broadcast()
	return channel
}

// NewTicker returns a Ticker whose ticks are driven by Advance. Panics
// if d <= 0, matching time.NewTicker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	entry := &waiter{
		deadline: c.current.Add(d),
		channel:  channel,
		interval: d,
	}
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.stopped = true
		},
		resetFunc: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			entry.interval = d
			entry.deadline = c.current.Add(d)
			entry.stopped = false
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past the
// deadline. If d <= 0, returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Channel sends
// are non-blocking (a full ticker channel drops the tick, matching
// time.Ticker). Tickers that span multiple intervals fire once per
// interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		expired := c.takeExpired(target)
		if len(expired) == 0 {
			return
		}
		sort.Slice(expired, func(i, j int) bool {
			return expired[i].deadline.Before(expired[j].deadline)
		})
		for _, entry := range expired {
			select {
			case entry.channel <- target:
			default:
			}
		}
	}
}

// BlockUntilWaiters blocks until at least count waiters are registered.
// Tests use it to order "the code under test has started its timer"
// before calling Advance, closing the startup race without sleeping.
func (c *FakeClock) BlockUntilWaiters(count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.liveWaiters() < count {
		c.registered.Wait()
	}
}

// liveWaiters counts non-stopped registrations. Callers hold c.mu.
func (c *FakeClock) liveWaiters() int {
	live := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			live++
		}
	}
	return live
}

// takeExpired removes due waiters from the pending set, rescheduling
// tickers for their next interval, and returns the waiters to fire.
func (c *FakeClock) takeExpired(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*waiter
	var remaining []*waiter
	for _, entry := range c.pending {
		switch {
		case entry.stopped:
			// Dropped from the pending set entirely.
		case !entry.deadline.After(target):
			expired = append(expired, entry)
		default:
			remaining = append(remaining, entry)
		}
	}
	for _, entry := range expired {
		if entry.interval > 0 {
			entry.deadline = entry.deadline.Add(entry.interval)
			remaining = append(remaining, entry)
		}
	}
	c.pending = remaining
	return expired
}
