// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock pinned to initial. Time moves only through
// Advance.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{
		now:   initial,
		pulse: make(chan struct{}),
	}
}

// FakeClock is a deterministic Clock for tests. Goroutines calling
// After, Sleep, or NewTicker park on pending timers; Advance moves the
// clock and delivers every timer whose deadline it crosses, earliest
// first.
//
// Safe for concurrent use.
type FakeClock struct {
	mu sync.Mutex

	now time.Time

	// pending holds scheduled timers sorted by deadline.
	pending []*fakeTimer

	// pulse is closed and replaced each time a timer registers,
	// waking WaitForTimers.
	pulse chan struct{}
}

// fakeTimer is one scheduled delivery. every is zero for one-shot
// timers and the repeat interval for tickers.
type fakeTimer struct {
	fireAt time.Time
	ch     chan time.Time
	every  time.Duration
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock advances d past
// the current fake time. A non-positive d delivers immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.schedule(&fakeTimer{fireAt: c.now.Add(d), ch: ch})
	return ch
}

// Sleep blocks until the clock advances past d.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// NewTicker returns a Ticker firing every d of fake time. Panics if d
// is not positive.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: ticker interval must be positive")
	}

	timer := &fakeTimer{ch: make(chan time.Time, 1), every: d}

	c.mu.Lock()
	timer.fireAt = c.now.Add(d)
	c.schedule(timer)
	c.mu.Unlock()

	return &Ticker{C: timer.ch, stop: func() { c.remove(timer) }}
}

// Advance moves the clock forward by d, delivering every pending timer
// whose deadline it crosses, earliest first. Each delivery carries the
// timer's own deadline. Tickers reschedule themselves; a delivery that
// finds the channel buffer full is dropped, matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for len(c.pending) > 0 && !c.pending[0].fireAt.After(target) {
		timer := c.pending[0]
		c.pending = c.pending[1:]

		select {
		case timer.ch <- timer.fireAt:
		default:
		}

		if timer.every > 0 {
			timer.fireAt = timer.fireAt.Add(timer.every)
			c.schedule(timer)
		}
	}
	c.now = target
}

// PendingCount reports how many timers are waiting to fire.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitForTimers blocks until at least n timers are pending. Tests use
// it to let a goroutine park on the clock before advancing:
//
//	go func() { fake.Sleep(time.Second) }()
//	fake.WaitForTimers(1)
//	fake.Advance(time.Second)
func (c *FakeClock) WaitForTimers(n int) {
	for {
		c.mu.Lock()
		if len(c.pending) >= n {
			c.mu.Unlock()
			return
		}
		wake := c.pulse
		c.mu.Unlock()
		<-wake
	}
}

// schedule inserts the timer in deadline order and wakes WaitForTimers.
// Caller holds c.mu.
func (c *FakeClock) schedule(timer *fakeTimer) {
	at := sort.Search(len(c.pending), func(i int) bool {
		return c.pending[i].fireAt.After(timer.fireAt)
	})
	c.pending = append(c.pending, nil)
	copy(c.pending[at+1:], c.pending[at:])
	c.pending[at] = timer

	close(c.pulse)
	c.pulse = make(chan struct{})
}

// remove drops a timer from the pending list. Removing a timer that
// already fired or was already removed is a no-op.
func (c *FakeClock) remove(timer *fakeTimer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, pending := range c.pending {
		if pending == timer {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
