package poller

// Rows of the game engine's database. The engine owns the schema; the
// position columns are optional and read as NULL when absent.

// GameStateRow is the single row of game_state.
type GameStateRow struct {
	ID            uint `gorm:"primaryKey"`
	CurrentTurn   int
	CurrentPlayer *int
}

// TableName implements gorm's Tabler.
func (GameStateRow) TableName() string { return "game_state" }

// CurrentThrowRow is one dart of the turn in progress.
type CurrentThrowRow struct {
	ThrowNumber int `gorm:"primaryKey"`
	Points      *int
	Score       *int
	Multiplier  *int
	PositionX   *float64
	PositionY   *float64
}

// TableName implements gorm's Tabler.
func (CurrentThrowRow) TableName() string { return "current_throws" }

// LastThrowRow is the single row of last_throw.
type LastThrowRow struct {
	ID         uint `gorm:"primaryKey"`
	PlayerID   *int
	Score      *int
	Multiplier *int
	Points     *int
	PositionX  *float64
	PositionY  *float64
}

// TableName implements gorm's Tabler.
func (LastThrowRow) TableName() string { return "last_throw" }

// AnimationStateRow is the single row of animation_state.
type AnimationStateRow struct {
	ID            uint `gorm:"primaryKey"`
	Animating     bool
	AnimationType *string
	TurnNumber    *int
	PlayerID      *int
	ThrowNumber   *int
	NextTurn      *int
	NextPlayer    *int
}

// TableName implements gorm's Tabler.
func (AnimationStateRow) TableName() string { return "animation_state" }

// Models lists every table the poller reads, for tests and local fixtures.
var Models = []any{&GameStateRow{}, &CurrentThrowRow{}, &LastThrowRow{}, &AnimationStateRow{}}
