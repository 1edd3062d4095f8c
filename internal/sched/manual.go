package sched

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler and Clock driven by Advance. Callbacks
// run synchronously on the goroutine calling Advance (or Post).
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []manualTimer

	// Frame is the delay NextFrame uses.
	Frame time.Duration
}

type manualTimer struct {
	when time.Time
	seq  uint64
	f    func()
}

// NewManual creates a manual scheduler whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:   start,
		Frame: DefaultFrameInterval,
	}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f at now+d.
func (m *Manual) AfterFunc(d time.Duration, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.timers = append(m.timers, manualTimer{when: m.now.Add(d), seq: m.seq, f: f})
}

// NextFrame schedules f one Frame from now.
func (m *Manual) NextFrame(f func()) {
	m.AfterFunc(m.Frame, f)
}

// Post runs f immediately.
func (m *Manual) Post(f func()) error {
	f()
	return nil
}

// Do runs f immediately unless ctx is already done.
func (m *Manual) Do(ctx context.Context, f func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f()
	return nil
}

// Pending returns the number of callbacks not yet run.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Advance moves the clock forward by d, running every callback that falls due
// in time order. Callbacks scheduled while advancing run too if they fall due
// within the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next, ok := m.popDue(target)
		if !ok {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.when
		m.mu.Unlock()

		next.f()
	}
}

func (m *Manual) popDue(target time.Time) (manualTimer, bool) {
	if len(m.timers) == 0 {
		return manualTimer{}, false
	}
	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].when.Equal(m.timers[j].when) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].when.Before(m.timers[j].when)
	})
	first := m.timers[0]
	if first.when.After(target) {
		return manualTimer{}, false
	}
	m.timers = m.timers[1:]
	return first, true
}
