// Package monitor reports overlay status and periodically writes it to a
// status file.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/glowe/dartviz/internal/sched"
	"github.com/glowe/dartviz/internal/surface"
)

// DefaultInterval is how often Start rewrites the status file.
const DefaultInterval = time.Second

// Surface reports drawing-surface readiness and geometry.
type Surface interface {
	Ready() bool
	State() surface.State
}

// Markers reports history contents.
type Markers interface {
	Len() int
	Counts() map[int]int
}

// Turn reports whose turn is on display.
type Turn interface {
	CurrentEntity() (int, bool)
}

// Commands lists registered dispatcher commands.
type Commands interface {
	Commands() []string
}

// Journal reports journal progress.
type Journal interface {
	Pending() int
	Written() uint64
	Dropped() uint64
}

// Dependencies holds everything the monitor reads. Surface, Markers and Turn
// are read on Runner; Journal may be nil.
type Dependencies struct {
	Runner   sched.Runner
	Surface  Surface
	Markers  Markers
	Turn     Turn
	Commands Commands
	Journal  Journal
	Logger   *slog.Logger
	Now      func() time.Time
}

// JournalStatus is the journal section of a Status.
type JournalStatus struct {
	Pending int    `json:"pending"`
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
}

// Status is one snapshot of the overlay.
type Status struct {
	Time          time.Time      `json:"time"`
	Ready         bool           `json:"ready"`
	Surface       surface.State  `json:"surface"`
	Markers       int            `json:"markers"`
	PerEntity     map[int]int    `json:"perEntity"`
	CurrentEntity *int           `json:"currentEntity"`
	Commands      []string       `json:"commands,omitempty"`
	Journal       *JournalStatus `json:"journal,omitempty"`
}

// Service builds status reports and manages the status file writer.
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewService creates a new monitor service.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status file writer is running.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects a snapshot. Overlay state is read on the runner.
func (s *Service) GetStatus(ctx context.Context) (Status, error) {
	st := Status{Time: s.deps.Now()}

	err := s.deps.Runner.Do(ctx, func() {
		st.Ready = s.deps.Surface.Ready()
		st.Surface = s.deps.Surface.State()
		st.Markers = s.deps.Markers.Len()
		st.PerEntity = s.deps.Markers.Counts()
		if id, ok := s.deps.Turn.CurrentEntity(); ok {
			st.CurrentEntity = &id
		}
	})
	if err != nil {
		return Status{}, fmt.Errorf("collect overlay status: %w", err)
	}

	if s.deps.Commands != nil {
		st.Commands = s.deps.Commands.Commands()
	}
	if j := s.deps.Journal; j != nil {
		st.Journal = &JournalStatus{
			Pending: j.Pending(),
			Written: j.Written(),
			Dropped: j.Dropped(),
		}
	}
	return st, nil
}

// WriteStatus writes the current status as indented JSON to path.
func (s *Service) WriteStatus(ctx context.Context, path string) error {
	st, err := s.GetStatus(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// Start rewrites the status file at path every interval until Stop.
func (s *Service) Start(path string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor goroutine", "path", path)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(ctx, path); err != nil && ctx.Err() == nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status file writer and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	select {
	case <-stop:
	default:
		close(stop)
	}
	<-done
}
