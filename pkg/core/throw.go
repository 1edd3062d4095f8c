// Package core holds the event types exchanged between the game engine and the
// overlay.
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Throw is one scored dart as reported by the game engine. Absent fields are
// nil. PositionX is the radius in millimetres from the bullseye and PositionY
// the angle in degrees with 0 pointing up.
type Throw struct {
	PlayerID   *int     `json:"player_id"`
	Score      *int     `json:"score"`
	Multiplier *int     `json:"multiplier"`
	Points     *int     `json:"points"`
	PositionX  *float64 `json:"position_x"`
	PositionY  *float64 `json:"position_y"`
}

// UnmarshalJSON decodes a throw, treating a position that is not a JSON number
// as absent so one bad coordinate drops only that marker.
func (t *Throw) UnmarshalJSON(data []byte) error {
	type plain Throw
	var aux struct {
		plain
		PositionX json.RawMessage `json:"position_x"`
		PositionY json.RawMessage `json:"position_y"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Throw(aux.plain)
	t.PositionX = number(aux.PositionX)
	t.PositionY = number(aux.PositionY)
	return nil
}

func number(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

// Key identifies a throw for deduplication. Absent parts render as "null".
func (t Throw) Key() string {
	return ThrowKey(t.PlayerID, t.Score, t.Multiplier, t.Points)
}

// ThrowKey formats the deduplication key entity-value-multiplier-points.
func ThrowKey(player, score, multiplier, points *int) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPart(player), keyPart(score), keyPart(multiplier), keyPart(points))
}

func keyPart(v *int) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprint(*v)
}

// GameState is the engine's view of the turn in progress.
type GameState struct {
	CurrentPlayer *int    `json:"current_player"`
	CurrentThrows []Throw `json:"current_throws"`
	Animating     bool    `json:"animating"`
	AnimationType string  `json:"animation_type"`
	NextPlayer    *int    `json:"next_player"`
}

// AnimationThirdThrow marks the end-of-turn animation after a third dart.
const AnimationThirdThrow = "third_throw"

// Layout reports where the reference image sits in the page.
type Layout struct {
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScrollX float64 `json:"scroll_x"`
	ScrollY float64 `json:"scroll_y"`
	// Visible toggles whether the reference image is present. Nil leaves it
	// unchanged.
	Visible *bool `json:"visible,omitempty"`
}

// Visualized is a marker that made it onto the board, as recorded in the
// journal.
type Visualized struct {
	Time       time.Time
	EntityID   int
	Value      int
	Multiplier int
	Radius     float64
	Angle      float64
	Source     string
	Raw        []byte
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
