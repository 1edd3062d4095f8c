// Package journal records every visualized marker and flushes the records
// to a sink in the background.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/queue"
	"github.com/glowe/dartviz/pkg/core"
)

// CommandMarker is the dispatcher command carrying a core.Visualized.
const CommandMarker = "marker"

// Sink types.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeInflux   = "influx"
)

const (
	DefaultFlushInterval = 2 * time.Second
	DefaultLimit         = 10000
	bufferSize           = 256
)

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("journal closed")

// Options configures a Journal.
type Options struct {
	FlushInterval time.Duration
	// Limit bounds the pending queue. The oldest records are evicted first.
	Limit int
}

// Journal buffers visualized throws and writes them to a sink.
type Journal struct {
	sink     Sink
	pending  *queue.Queue[core.Visualized]
	interval time.Duration
	logger   *slog.Logger

	flushMu sync.Mutex
	mu      sync.Mutex
	closed  bool
	written uint64
}

// New creates a journal writing to sink.
func New(sink Sink, opts Options, logger *slog.Logger) *Journal {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		sink:     sink,
		pending:  queue.NewBounded[core.Visualized](opts.Limit),
		interval: opts.FlushInterval,
		logger:   logger,
	}
}

// Record queues a throw for the next flush.
func (j *Journal) Record(v core.Visualized) error {
	j.mu.Lock()
	closed := j.closed
	j.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if evicted := j.pending.Push(v); evicted > 0 {
		j.logger.Warn("Journal queue full, evicted oldest records", "evicted", evicted)
	}
	return nil
}

// Pending returns the number of records awaiting a flush.
func (j *Journal) Pending() int {
	return j.pending.Len()
}

// Written returns the number of records the sink accepted.
func (j *Journal) Written() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Dropped returns the number of records evicted before they were written.
func (j *Journal) Dropped() uint64 {
	return j.pending.Dropped()
}

// Flush writes all pending records. On failure the batch is requeued.
func (j *Journal) Flush(ctx context.Context) error {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	batch := j.pending.Drain(0)
	if len(batch) == 0 {
		return nil
	}
	if err := j.sink.Write(ctx, batch); err != nil {
		j.pending.Requeue(batch...)
		return err
	}

	j.mu.Lock()
	j.written += uint64(len(batch))
	j.mu.Unlock()
	j.logger.Debug("Journal flushed", "count", len(batch))
	return nil
}

// Run flushes every interval until ctx is cancelled.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Flush(ctx); err != nil {
				j.logger.Warn("Journal flush failed", "pending", j.pending.Len(), "error", err)
			}
		}
	}
}

// Close stops accepting records, writes what is left and closes the sink.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	return errors.Join(j.Flush(ctx), j.sink.Close())
}

// Register handles the marker command on a buffered queue so recording never
// runs on the caller's goroutine.
func (j *Journal) Register(d *dispatcher.Dispatcher) {
	d.Register(CommandMarker, func(e dispatcher.Event) (any, error) {
		v, ok := e.Payload.(core.Visualized)
		if !ok {
			return nil, errors.New("marker payload is not a visualized throw")
		}
		return nil, j.Record(v)
	}, dispatcher.Buffered(bufferSize))
}
