package bridge

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/history"
	"github.com/glowe/dartviz/internal/sched"
	"github.com/glowe/dartviz/pkg/core"
)

type fakeSurface struct {
	invalidations int
}

func (f *fakeSurface) Invalidate() { f.invalidations++ }

type fixture struct {
	bridge  *Bridge
	store   *history.Store
	sched   *sched.Manual
	surface *fakeSurface
	logs    *bytes.Buffer
	redraws int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sched:   sched.NewManual(time.Date(2025, 4, 1, 20, 0, 0, 0, time.UTC)),
		surface: &fakeSurface{},
		logs:    &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.store = history.New(3, f.sched, logger)
	f.bridge = New(f.store, f.surface, f.sched, func() { f.redraws++ }, Options{}, logger)
	return f
}

func throw(player, score, multiplier, points int) core.Throw {
	return core.Throw{
		PlayerID:   core.Int(player),
		Score:      core.Int(score),
		Multiplier: core.Int(multiplier),
		Points:     core.Int(points),
		PositionX:  core.Float(100),
		PositionY:  core.Float(45),
	}
}

func values(ms []history.Marker) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Value
	}
	return out
}

func TestHandleThrow_AddsAndRedraws(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleThrow(throw(1, 20, 3, 60))

	require.Equal(t, 1, f.store.Len())
	m := f.store.All()[0]
	assert.Equal(t, 1, m.EntityID)
	assert.Equal(t, 20, m.Value)
	assert.Equal(t, 3, m.Multiplier)
	assert.Equal(t, 100.0, m.Radius)
	assert.Equal(t, 45.0, m.Angle)
	assert.Equal(t, 1, f.redraws)
	assert.Equal(t, "1-20-3-60", f.bridge.LastKey())
}

func TestHandleThrow_DuplicateIsIdempotent(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleThrow(throw(1, 20, 3, 60))
	f.bridge.HandleThrow(throw(1, 20, 3, 60))
	f.bridge.HandleThrow(throw(1, 20, 3, 60))

	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1, f.redraws)
}

func TestHandleThrow_IgnoresMissesAndMissingEntity(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleThrow(throw(1, 0, 1, 0))
	f.bridge.HandleThrow(throw(0, 20, 1, 20))
	f.bridge.HandleThrow(core.Throw{Score: core.Int(20)})
	f.bridge.HandleThrow(core.Throw{PlayerID: core.Int(1)})

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.redraws)
	assert.Empty(t, f.bridge.LastKey())
}

func TestHandleThrow_MissingPositionDropsMarkerOnly(t *testing.T) {
	f := newFixture(t)

	th := throw(2, 19, 1, 19)
	th.PositionX = nil
	f.bridge.HandleThrow(th)

	assert.Zero(t, f.store.Len())
	assert.Zero(t, f.redraws)
	assert.Equal(t, "2-19-1-19", f.bridge.LastKey())
	assert.Contains(t, f.logs.String(), "Missing position data for dart")
}

func TestHandleThrow_MissingMultiplier(t *testing.T) {
	f := newFixture(t)

	th := throw(1, 25, 0, 25)
	th.Multiplier = nil
	f.bridge.HandleThrow(th)

	require.Equal(t, 1, f.store.Len())
	assert.Equal(t, 0, f.store.All()[0].Multiplier)
	assert.Equal(t, "1-25-null-25", f.bridge.LastKey())
}

func TestHandleThrow_FourthEvictsOldest(t *testing.T) {
	f := newFixture(t)

	for _, v := range []int{5, 1, 19, 20} {
		f.bridge.HandleThrow(throw(1, v, 1, v))
		f.sched.Advance(time.Millisecond)
	}

	assert.Equal(t, []int{1, 19, 20}, values(f.store.All()))
}

func TestHandleGameState_ReplaysCurrentThrows(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		CurrentThrows: []core.Throw{
			throw(0, 20, 1, 20),
			throw(0, 5, 2, 10),
			{Score: nil, Multiplier: core.Int(1)},
			throw(0, 18, 0, 0),
		},
	})

	assert.Equal(t, []int{20, 5}, values(f.store.All()))
	for _, m := range f.store.All() {
		assert.Equal(t, 1, m.EntityID)
	}
	assert.Equal(t, "1-5-2-10", f.bridge.LastKey())
	assert.Equal(t, 1, f.redraws)

	entity, ok := f.bridge.CurrentEntity()
	assert.True(t, ok)
	assert.Equal(t, 1, entity)
}

func TestHandleGameState_SkipsLastVisualized(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		CurrentThrows: []core.Throw{throw(0, 20, 1, 20)},
	})

	assert.Equal(t, 1, f.store.Len())
	assert.Equal(t, 1, f.redraws)
}

func TestHandleGameState_IgnoresMissingPlayer(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{CurrentThrows: []core.Throw{throw(0, 20, 1, 20)}})
	f.bridge.HandleGameState(core.GameState{CurrentPlayer: core.Int(0)})

	assert.Zero(t, f.store.Len())
	_, ok := f.bridge.CurrentEntity()
	assert.False(t, ok)
}

func TestHandleGameState_EntityChangeClearsFirst(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		CurrentThrows: []core.Throw{throw(0, 20, 1, 20), throw(0, 1, 1, 1)},
	})
	require.Equal(t, 2, f.store.Len())

	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(2),
		CurrentThrows: []core.Throw{throw(0, 20, 1, 20)},
	})

	require.Equal(t, 1, f.store.Len())
	assert.Equal(t, 2, f.store.All()[0].EntityID)
	assert.Equal(t, "2-20-1-20", f.bridge.LastKey())
}

func TestHandleGameState_SameEntityKeepsHistory(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{CurrentPlayer: core.Int(1), CurrentThrows: []core.Throw{throw(0, 20, 1, 20)}})
	f.bridge.HandleGameState(core.GameState{CurrentPlayer: core.Int(1), CurrentThrows: []core.Throw{throw(0, 20, 1, 20), throw(0, 3, 3, 9)}})

	assert.Equal(t, []int{20, 3}, values(f.store.All()))
}

func TestHandleGameState_ThirdThrowClearsWhenTurnMovesOn(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		CurrentThrows: []core.Throw{throw(0, 20, 1, 20)},
		Animating:     true,
		AnimationType: core.AnimationThirdThrow,
		NextPlayer:    core.Int(2),
	})
	require.Equal(t, 1, f.store.Len())

	f.sched.Advance(DefaultAnimationDelay - time.Millisecond)
	assert.Equal(t, 1, f.store.Len())

	f.sched.Advance(time.Millisecond)
	assert.Zero(t, f.store.Len())
	// lastKey survives the animation clear.
	assert.Equal(t, "1-20-1-20", f.bridge.LastKey())
}

func TestHandleGameState_ThirdThrowKeepsWhenNextAlreadyCurrent(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		CurrentThrows: []core.Throw{throw(0, 20, 1, 20)},
		Animating:     true,
		AnimationType: core.AnimationThirdThrow,
		NextPlayer:    core.Int(2),
	})
	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(2),
		CurrentThrows: []core.Throw{throw(0, 7, 1, 7)},
	})

	f.sched.Advance(DefaultAnimationDelay)
	require.Equal(t, 1, f.store.Len())
	assert.Equal(t, 7, f.store.All()[0].Value)
}

func TestHandleGameState_OtherAnimationsDoNotClear(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		CurrentThrows: []core.Throw{throw(0, 20, 1, 20)},
		Animating:     true,
		AnimationType: "win",
		NextPlayer:    core.Int(2),
	})
	f.bridge.HandleGameState(core.GameState{
		CurrentPlayer: core.Int(1),
		Animating:     true,
		AnimationType: core.AnimationThirdThrow,
	})

	f.sched.Advance(time.Minute)
	assert.Equal(t, 1, f.store.Len())
	assert.Zero(t, f.sched.Pending())
}

func TestHandleUndo_UnblocksRepeatAfterDelay(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	f.bridge.HandleUndo()

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	assert.Equal(t, 1, f.store.Len(), "still blocked before the delay")

	f.sched.Advance(DefaultUndoDelay)
	assert.Empty(t, f.bridge.LastKey())

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	assert.Equal(t, 2, f.store.Len())
}

func TestHandleClear(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	f.bridge.HandleClear()

	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.bridge.LastKey())
	assert.Equal(t, 2, f.redraws)

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	assert.Equal(t, 1, f.store.Len())
}

func TestHandleResize_Invalidates(t *testing.T) {
	f := newFixture(t)

	f.bridge.HandleResize()
	f.bridge.HandleResize()

	assert.Equal(t, 2, f.surface.invalidations)
}

func TestOnMarker(t *testing.T) {
	f := newFixture(t)

	var seen []history.Marker
	f.bridge.OnMarker(func(m history.Marker, _ core.Throw) { seen = append(seen, m) })

	f.bridge.HandleThrow(throw(1, 20, 1, 20))
	bad := throw(1, 19, 1, 19)
	bad.PositionY = nil
	f.bridge.HandleThrow(bad)

	require.Len(t, seen, 1)
	assert.Equal(t, 20, seen[0].Value)
}

func TestRegister_RoutesCommands(t *testing.T) {
	f := newFixture(t)

	d, err := dispatcher.New(discardLogger{})
	require.NoError(t, err)
	f.bridge.Register(d, f.sched)

	for _, cmd := range []string{CommandLastThrow, CommandGameState, CommandUndo, CommandClear, CommandResize} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}

	_, err = d.Dispatch(dispatcher.Event{Command: CommandGameState, Payload: &core.GameState{CurrentPlayer: core.Int(4)}})
	require.NoError(t, err)

	th := throw(4, 20, 2, 40)
	_, err = d.Dispatch(dispatcher.Event{Command: CommandLastThrow, Payload: &th})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.Len())

	_, err = d.Dispatch(dispatcher.Event{Command: CommandGameState, Payload: core.GameState{CurrentPlayer: core.Int(5)}})
	require.NoError(t, err)
	assert.Zero(t, f.store.Len())

	_, err = d.Dispatch(dispatcher.Event{Command: CommandResize})
	require.NoError(t, err)
	assert.Equal(t, 1, f.surface.invalidations)
}

func TestRegister_BadPayloadIsDropped(t *testing.T) {
	f := newFixture(t)

	d, err := dispatcher.New(discardLogger{})
	require.NoError(t, err)
	f.bridge.Register(d, f.sched)

	_, err = d.Dispatch(dispatcher.Event{Command: CommandLastThrow, Payload: "garbage"})
	require.NoError(t, err)

	assert.Zero(t, f.store.Len())
	assert.Contains(t, f.logs.String(), "Dropping last_throw event")
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
