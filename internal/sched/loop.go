package sched

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultFrameInterval approximates one display refresh at 60Hz.
const DefaultFrameInterval = 16 * time.Millisecond

var (
	// ErrLoopClosed is returned when work is submitted after Close.
	ErrLoopClosed = errors.New("loop closed")
	// ErrQueueFull is returned by Post when the job queue has no room.
	ErrQueueFull = errors.New("loop queue full")
)

// Loop executes queued callbacks one at a time on a single goroutine, in
// arrival order. Timers and frame callbacks are delivered through the same
// queue so that all state owned by the loop is only touched from it.
type Loop struct {
	jobs  chan func()
	frame time.Duration

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLoop creates a loop with the given queue capacity and frame interval.
// Non-positive values fall back to defaults.
func NewLoop(size int, frame time.Duration) *Loop {
	if size <= 0 {
		size = 1024
	}
	if frame <= 0 {
		frame = DefaultFrameInterval
	}
	return &Loop{
		jobs:  make(chan func(), size),
		frame: frame,
		done:  make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-l.done:
				return
			case f := <-l.jobs:
				f()
			}
		}
	}()
}

// Close stops the loop and waits for the running callback to return. Queued
// callbacks that have not started are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// Post queues f without blocking.
func (l *Loop) Post(f func()) error {
	if l.closed() {
		return ErrLoopClosed
	}

	select {
	case l.jobs <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// PostWait queues f, blocking while the queue is full.
func (l *Loop) PostWait(f func()) bool {
	if l.closed() {
		return false
	}
	select {
	case <-l.done:
		return false
	case l.jobs <- f:
		return true
	}
}

// Do runs f on the loop and waits for it to finish. It must not be called
// from a callback already running on the loop.
func (l *Loop) Do(ctx context.Context, f func()) error {
	if l.closed() {
		return ErrLoopClosed
	}
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		f()
	}

	select {
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	case l.jobs <- job:
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc queues f on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, func() {
		l.PostWait(f)
	})
}

// NextFrame queues f for the next frame boundary.
func (l *Loop) NextFrame(f func()) {
	l.AfterFunc(l.frame, f)
}

func (l *Loop) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
