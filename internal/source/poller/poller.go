// Package poller reads the game engine's database on an interval and emits
// game_state and last_throw events when the stored state changes.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"gorm.io/gorm"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/source"
	"github.com/glowe/dartviz/pkg/core"
	"github.com/glowe/dartviz/pkg/streaming"
)

// DefaultInterval is how often the database is read.
const DefaultInterval = 500 * time.Millisecond

// Name is the event source name.
const Name = "poller"

// Snapshot is the game state read in one poll.
type Snapshot struct {
	Game      core.GameState
	LastThrow *core.Throw
}

// Poller polls the game database.
type Poller struct {
	db       *gorm.DB
	interval time.Duration
	emit     source.Emitter
	logger   *slog.Logger

	last     Snapshot
	hasGame  bool
	hasThrow bool
}

// New creates a poller. A non-positive interval uses DefaultInterval.
func New(db *gorm.DB, interval time.Duration, emit source.Emitter, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		db:       db,
		interval: interval,
		emit:     emit,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. Poll errors are logged and retried on
// the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Polling game database", "interval", p.interval)
	for {
		if err := p.Poll(ctx); err != nil {
			p.logger.Warn("Failed to poll game database", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reads one snapshot and emits the parts that changed since they were
// last emitted. A part is only remembered once its dispatch succeeds, so a
// rejected event is sent again on the next poll. When game_state is rejected
// last_throw waits for it.
func (p *Poller) Poll(ctx context.Context) error {
	snap, err := p.Read(ctx)
	if err != nil {
		return err
	}

	if !p.hasGame || !reflect.DeepEqual(snap.Game, p.last.Game) {
		if err := p.dispatch(streaming.TypeGameState, snap.Game); err != nil {
			return err
		}
		p.last.Game = snap.Game
		p.hasGame = true
	}

	if !p.hasThrow || !reflect.DeepEqual(snap.LastThrow, p.last.LastThrow) {
		if snap.LastThrow != nil {
			if err := p.dispatch(streaming.TypeLastThrow, *snap.LastThrow); err != nil {
				return err
			}
		}
		p.last.LastThrow = snap.LastThrow
		p.hasThrow = true
	}
	return nil
}

func (p *Poller) dispatch(command string, payload any) error {
	_, err := p.emit.Dispatch(dispatcher.Event{
		Command:   command,
		Payload:   payload,
		Source:    Name,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", command, err)
	}
	return nil
}

// Read loads the current snapshot. A missing animation_state or last_throw
// table reads as empty.
func (p *Poller) Read(ctx context.Context) (Snapshot, error) {
	db := p.db.WithContext(ctx)

	var gs GameStateRow
	if err := db.Where("id = ?", 1).Take(&gs).Error; err != nil {
		return Snapshot{}, fmt.Errorf("read game_state: %w", err)
	}

	var throws []CurrentThrowRow
	if err := db.Order("throw_number").Find(&throws).Error; err != nil {
		return Snapshot{}, fmt.Errorf("read current_throws: %w", err)
	}

	snap := Snapshot{
		Game: core.GameState{
			CurrentPlayer: gs.CurrentPlayer,
			CurrentThrows: make([]core.Throw, 0, len(throws)),
		},
	}
	for _, t := range throws {
		snap.Game.CurrentThrows = append(snap.Game.CurrentThrows, core.Throw{
			Score:      t.Score,
			Multiplier: t.Multiplier,
			Points:     t.Points,
			PositionX:  t.PositionX,
			PositionY:  t.PositionY,
		})
	}

	if db.Migrator().HasTable(&AnimationStateRow{}) {
		var anim AnimationStateRow
		err := db.Where("id = ?", 1).Take(&anim).Error
		switch {
		case err == nil:
			snap.Game.Animating = anim.Animating
			if anim.AnimationType != nil {
				snap.Game.AnimationType = *anim.AnimationType
			}
			snap.Game.NextPlayer = anim.NextPlayer
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return Snapshot{}, fmt.Errorf("read animation_state: %w", err)
		}
	}

	if db.Migrator().HasTable(&LastThrowRow{}) {
		var lt LastThrowRow
		err := db.Where("id = ?", 1).Take(&lt).Error
		switch {
		case err == nil:
			snap.LastThrow = &core.Throw{
				PlayerID:   lt.PlayerID,
				Score:      lt.Score,
				Multiplier: lt.Multiplier,
				Points:     lt.Points,
				PositionX:  lt.PositionX,
				PositionY:  lt.PositionY,
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return Snapshot{}, fmt.Errorf("read last_throw: %w", err)
		}
	}

	return snap, nil
}
