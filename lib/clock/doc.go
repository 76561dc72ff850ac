// Copyright 2026 The Termgate Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Everything in termgate that waits takes a Clock instead of calling
// the time package directly: the reaper's sweep ticker, the
// supervisor's readiness poll, the pipe client's cold-start retry, and
// the display manager's stop grace. Production code injects Real().
// Tests inject Fake(), where time moves only through Advance, so a
// ten-second reap interval costs nothing and races nothing.
//
// # Test Synchronization
//
// A goroutine calling Sleep, After, or NewTicker on a FakeClock parks
// on a pending timer. WaitForTimers blocks until a given number of
// timers are pending, which removes the race between a loop
// registering its timer and the test advancing the clock:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go loop.Run(ctx)            // selects on fake.NewTicker(...).C
//	fake.WaitForTimers(1)       // the loop's ticker is registered
//	fake.Advance(10 * time.Second)
package clock
