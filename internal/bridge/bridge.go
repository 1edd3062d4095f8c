// Package bridge turns game engine events into history mutations and redraws.
//
// All Handle methods and the timers they schedule must run on the same
// goroutine (the overlay's event loop). Register wires them to a dispatcher so
// that this holds for events arriving from any transport.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/history"
	"github.com/glowe/dartviz/internal/sched"
	"github.com/glowe/dartviz/pkg/core"
)

// Commands handled by the bridge.
const (
	CommandLastThrow = "last_throw"
	CommandGameState = "game_state"
	CommandUndo      = "undo"
	CommandClear     = "clear"
	CommandResize    = "resize"
)

// Default delays.
const (
	DefaultAnimationDelay = 3500 * time.Millisecond
	DefaultUndoDelay      = 500 * time.Millisecond
)

// ErrBadPayload is returned when an event carries the wrong payload type.
var ErrBadPayload = errors.New("unexpected event payload")

// Invalidator is the part of the surface the bridge needs.
type Invalidator interface {
	Invalidate()
}

// MarkerFunc observes markers added to the history.
type MarkerFunc func(m history.Marker, t core.Throw)

// Options tunes a Bridge. Zero values use the defaults.
type Options struct {
	AnimationDelay time.Duration
	UndoDelay      time.Duration
}

// Bridge holds the integration state: the entity whose turn is shown and the
// key of the last visualized throw.
type Bridge struct {
	store   *history.Store
	surface Invalidator
	sched   sched.Scheduler
	redraw  func()
	logger  *slog.Logger
	opts    Options

	currentEntity int
	hasEntity     bool
	lastKey       string

	onMarker []MarkerFunc
}

// New creates a Bridge. redraw is called after every history mutation.
func New(store *history.Store, surface Invalidator, s sched.Scheduler, redraw func(), opts Options, logger *slog.Logger) *Bridge {
	if opts.AnimationDelay <= 0 {
		opts.AnimationDelay = DefaultAnimationDelay
	}
	if opts.UndoDelay <= 0 {
		opts.UndoDelay = DefaultUndoDelay
	}
	if redraw == nil {
		redraw = func() {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		store:   store,
		surface: surface,
		sched:   s,
		redraw:  redraw,
		logger:  logger,
		opts:    opts,
	}
}

// OnMarker registers an observer for added markers.
func (b *Bridge) OnMarker(f MarkerFunc) {
	b.onMarker = append(b.onMarker, f)
}

// CurrentEntity returns the entity whose turn is shown, if any.
func (b *Bridge) CurrentEntity() (int, bool) {
	return b.currentEntity, b.hasEntity
}

// LastKey returns the key of the last visualized throw, or "" when unset.
func (b *Bridge) LastKey() string {
	return b.lastKey
}

// HandleThrow visualizes a single reported throw. Misses and repeats of the
// last visualized throw are ignored.
func (b *Bridge) HandleThrow(t core.Throw) {
	if t.PlayerID == nil || *t.PlayerID == 0 || t.Score == nil || *t.Score == 0 {
		return
	}

	key := t.Key()
	if key == b.lastKey {
		return
	}

	added := b.add(*t.PlayerID, t)
	b.lastKey = key
	if added {
		b.redraw()
	}
}

// HandleGameState syncs with the engine's turn state. A change of entity
// clears the board before the current throws are replayed.
func (b *Bridge) HandleGameState(gs core.GameState) {
	if gs.CurrentPlayer == nil || *gs.CurrentPlayer == 0 {
		return
	}
	player := *gs.CurrentPlayer
	changed := false

	if b.hasEntity && b.currentEntity != player {
		b.logger.Debug("Entity changed, clearing markers", "from", b.currentEntity, "to", player)
		b.store.Clear()
		b.lastKey = ""
		changed = true
	}
	b.currentEntity = player
	b.hasEntity = true

	for _, t := range gs.CurrentThrows {
		if t.Score == nil {
			continue
		}
		key := core.ThrowKey(gs.CurrentPlayer, t.Score, t.Multiplier, t.Points)
		if key == b.lastKey {
			continue
		}
		if *t.Score != 0 && t.Multiplier != nil && *t.Multiplier != 0 {
			if b.add(player, t) {
				changed = true
			}
			b.lastKey = key
		}
	}

	if changed {
		b.redraw()
	}

	if gs.Animating && gs.AnimationType == core.AnimationThirdThrow && gs.NextPlayer != nil {
		next := *gs.NextPlayer
		b.sched.AfterFunc(b.opts.AnimationDelay, func() {
			if b.hasEntity && b.currentEntity == next {
				return
			}
			b.logger.Debug("Turn ended, clearing markers", "next", next)
			b.store.Clear()
			b.redraw()
		})
	}
}

// HandleUndo forgets the last visualized throw once the engine has had time
// to process the correction, so the next throw is shown even if it repeats.
func (b *Bridge) HandleUndo() {
	b.sched.AfterFunc(b.opts.UndoDelay, func() {
		b.lastKey = ""
	})
}

// HandleClear empties the board.
func (b *Bridge) HandleClear() {
	b.store.Clear()
	b.lastKey = ""
	b.redraw()
}

// HandleResize requests a coalesced resize of the surface.
func (b *Bridge) HandleResize() {
	if b.surface != nil {
		b.surface.Invalidate()
	}
}

// add stores a marker for t. A bad position drops only the marker.
func (b *Bridge) add(entity int, t core.Throw) bool {
	multiplier := 0
	if t.Multiplier != nil {
		multiplier = *t.Multiplier
	}

	m, err := b.store.Add(entity, *t.Score, multiplier, orNaN(t.PositionX), orNaN(t.PositionY))
	if err != nil {
		return false
	}
	for _, f := range b.onMarker {
		f(m, t)
	}
	return true
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// Register subscribes the bridge to its commands. Handlers run on p.
func (b *Bridge) Register(d *dispatcher.Dispatcher, p sched.Poster) {
	opts := []dispatcher.Option{dispatcher.Posted(p), dispatcher.Logged()}

	d.Register(CommandLastThrow, func(e dispatcher.Event) (any, error) {
		t, err := throwPayload(e.Payload)
		if err != nil {
			b.logger.Warn("Dropping last_throw event", "source", e.Source, "error", err)
			return nil, err
		}
		b.HandleThrow(t)
		return nil, nil
	}, opts...)

	d.Register(CommandGameState, func(e dispatcher.Event) (any, error) {
		gs, err := gameStatePayload(e.Payload)
		if err != nil {
			b.logger.Warn("Dropping game_state event", "source", e.Source, "error", err)
			return nil, err
		}
		b.HandleGameState(gs)
		return nil, nil
	}, opts...)

	d.Register(CommandUndo, func(dispatcher.Event) (any, error) {
		b.HandleUndo()
		return nil, nil
	}, opts...)

	d.Register(CommandClear, func(dispatcher.Event) (any, error) {
		b.HandleClear()
		return nil, nil
	}, opts...)

	d.Register(CommandResize, func(dispatcher.Event) (any, error) {
		b.HandleResize()
		return nil, nil
	}, opts...)
}

func throwPayload(p any) (core.Throw, error) {
	switch v := p.(type) {
	case core.Throw:
		return v, nil
	case *core.Throw:
		if v != nil {
			return *v, nil
		}
	}
	return core.Throw{}, fmt.Errorf("%w: %T", ErrBadPayload, p)
}

func gameStatePayload(p any) (core.GameState, error) {
	switch v := p.(type) {
	case core.GameState:
		return v, nil
	case *core.GameState:
		if v != nil {
			return *v, nil
		}
	}
	return core.GameState{}, fmt.Errorf("%w: %T", ErrBadPayload, p)
}
