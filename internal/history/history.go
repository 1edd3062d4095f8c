// Package history keeps the recent markers shown on the board, bounded per
// entity.
package history

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/glowe/dartviz/internal/geo"
	"github.com/glowe/dartviz/internal/sched"
)

// DefaultMaxPerEntity is how many markers each entity keeps.
const DefaultMaxPerEntity = 3

// ErrInvalidPosition is returned by Add when the radius or angle is not a
// finite number.
var ErrInvalidPosition = errors.New("invalid marker position")

// Marker is one visualized scoring event. Markers are immutable once stored.
type Marker struct {
	EntityID   int
	Value      int
	Multiplier int
	Radius     float64
	Angle      float64
	CreatedAt  time.Time
	Seq        uint64
}

// NewerThan orders markers by recency, using Seq to break timestamp ties.
func (m Marker) NewerThan(o Marker) bool {
	if m.CreatedAt.Equal(o.CreatedAt) {
		return m.Seq > o.Seq
	}
	return m.CreatedAt.After(o.CreatedAt)
}

// Store holds markers in insertion order and keeps at most maxPerEntity of
// them for every entity.
type Store struct {
	mu           sync.RWMutex
	markers      []Marker
	seq          uint64
	maxPerEntity int

	clock  sched.Clock
	logger *slog.Logger
}

// New creates a store. A non-positive maxPerEntity uses DefaultMaxPerEntity.
func New(maxPerEntity int, clock sched.Clock, logger *slog.Logger) *Store {
	if maxPerEntity <= 0 {
		maxPerEntity = DefaultMaxPerEntity
	}
	if clock == nil {
		clock = sched.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		maxPerEntity: maxPerEntity,
		clock:        clock,
		logger:       logger,
	}
}

// Add records a marker and evicts the oldest markers of its entity beyond the
// per-entity bound. Markers without a usable position are dropped.
func (s *Store) Add(entityID, value, multiplier int, radius, angle float64) (Marker, error) {
	if !geo.ValidPosition(radius, angle) {
		s.logger.Warn("Missing position data for dart",
			"entity", entityID, "value", value, "multiplier", multiplier)
		return Marker{}, ErrInvalidPosition
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	m := Marker{
		EntityID:   entityID,
		Value:      value,
		Multiplier: multiplier,
		Radius:     radius,
		Angle:      angle,
		CreatedAt:  s.clock.Now(),
		Seq:        s.seq,
	}
	s.markers = append(s.markers, m)
	s.evict()

	return m, nil
}

// evict keeps the newest maxPerEntity markers of every entity. Relative
// insertion order of the survivors is preserved. Caller holds mu.
func (s *Store) evict() {
	counts := make(map[int]int)
	for _, m := range s.markers {
		counts[m.EntityID]++
	}

	over := false
	for _, n := range counts {
		if n > s.maxPerEntity {
			over = true
			break
		}
	}
	if !over {
		return
	}

	// Walking newest to oldest, the first maxPerEntity markers of each entity
	// survive.
	seen := make(map[int]int)
	keep := make([]bool, len(s.markers))
	order := s.byRecency()
	for _, i := range order {
		id := s.markers[i].EntityID
		if seen[id] < s.maxPerEntity {
			keep[i] = true
		}
		seen[id]++
	}

	kept := s.markers[:0:0]
	for i, m := range s.markers {
		if keep[i] {
			kept = append(kept, m)
		}
	}
	s.markers = kept
}

// byRecency returns indexes into s.markers, newest first.
func (s *Store) byRecency() []int {
	idx := make([]int, len(s.markers))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return s.markers[idx[a]].NewerThan(s.markers[idx[b]])
	})
	return idx
}

// Clear removes every marker.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = nil
}

// All returns a copy of the stored markers in insertion order.
func (s *Store) All() []Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Entity returns the markers of one entity, newest first.
func (s *Store) Entity(entityID int) []Marker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return GroupOf(s.markers, entityID)
}

// Len returns the number of stored markers.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markers)
}

// Counts returns the number of markers per entity.
func (s *Store) Counts() map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int]int)
	for _, m := range s.markers {
		counts[m.EntityID]++
	}
	return counts
}

// GroupOf filters markers down to one entity, newest first.
func GroupOf(markers []Marker, entityID int) []Marker {
	var group []Marker
	for _, m := range markers {
		if m.EntityID == entityID {
			group = append(group, m)
		}
	}
	sort.SliceStable(group, func(a, b int) bool {
		return group[a].NewerThan(group[b])
	})
	return group
}
