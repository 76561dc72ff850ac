// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface termgate's waiting code runs against. The
// supervisor's readiness poll, the reaper's sweep ticker, the pipe
// client's cold-start retry, and the display manager's stop grace all
// take a Clock so tests can drive them without real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering on C every d. Panics if
	// d is not positive.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. The channel holds one tick;
// when the consumer falls behind, further ticks are dropped rather
// than queued, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop ends tick delivery. C is not closed; it simply goes quiet.
// Stopping twice is fine.
func (t *Ticker) Stop() { t.stop() }
