// Package sched provides the single-threaded execution model the overlay runs
// on: a loop that executes callbacks one at a time, timers and next-frame
// callbacks that land on that loop, and the coalesce-and-delay combinators
// built on top of them.
package sched

import (
	"context"
	"time"
)

// Scheduler defers callbacks. Implementations run every callback on the same
// logical thread as the code that scheduled it. Scheduled callbacks cannot be
// cancelled; callers re-check state when the callback fires.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
	NextFrame(f func())
}

// Poster queues work for the loop. Post returns ErrQueueFull or
// ErrLoopClosed when the work was rejected.
type Poster interface {
	Post(f func()) error
}

// Runner runs work on the loop and waits for it.
type Runner interface {
	Do(ctx context.Context, f func()) error
}

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (including its monotonic reading).
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}
