package sched

import (
	"sync/atomic"
	"time"
)

// Debounce returns a trigger that runs fn once, wait after the last call in a
// burst. Earlier timers are superseded rather than cancelled: they still fire
// but do nothing.
func Debounce(s Scheduler, wait time.Duration, fn func()) func() {
	var gen atomic.Uint64
	return func() {
		mine := gen.Add(1)
		s.AfterFunc(wait, func() {
			if gen.Load() == mine {
				fn()
			}
		})
	}
}

// Coalescer collapses bursts of invalidations into a single action run on the
// next frame after the burst settles. At most one frame callback is pending at
// any time.
type Coalescer struct {
	s       Scheduler
	action  func()
	pending bool
	trigger func()
}

// NewCoalescer builds a coalescer that debounces by wait and then runs action
// on the next frame.
func NewCoalescer(s Scheduler, wait time.Duration, action func()) *Coalescer {
	c := &Coalescer{s: s, action: action}
	c.trigger = Debounce(s, wait, c.schedule)
	return c
}

// Trigger signals an invalidation.
func (c *Coalescer) Trigger() {
	c.trigger()
}

// Pending reports whether a frame callback is scheduled and has not run yet.
func (c *Coalescer) Pending() bool {
	return c.pending
}

func (c *Coalescer) schedule() {
	if c.pending {
		return
	}
	c.pending = true
	c.s.NextFrame(func() {
		c.pending = false
		c.action()
	})
}
