// Package style decides how each marker looks: a stable color per entity and
// an opacity that fades with the marker's age within its entity.
package style

import (
	"math"

	"github.com/gogpu/gg"

	"github.com/glowe/dartviz/internal/history"
)

// Opacity bounds for the rank-based fade.
const (
	NewestOpacity = 0.9
	OldestOpacity = 0.5
)

// DefaultPalette is cycled through by entity id.
var DefaultPalette = []string{
	"#ff0000", "#0000ff", "#00ff00", "#ffff00",
	"#ff00ff", "#00ffff", "#ff8800", "#8800ff",
}

// Style is the resolved look of one marker.
type Style struct {
	Color   gg.RGBA
	Opacity float64
}

// Fill returns the marker color with the opacity folded into its alpha,
// quantized to 8 bits.
func (s Style) Fill() gg.RGBA {
	c := s.Color
	c.A = math.Floor(s.Opacity*255) / 255
	return c
}

// Resolver maps markers to styles.
type Resolver struct {
	palette []gg.RGBA
}

// NewResolver parses a hex palette. An empty palette uses DefaultPalette.
func NewResolver(palette []string) *Resolver {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	r := &Resolver{palette: make([]gg.RGBA, len(palette))}
	for i, hex := range palette {
		r.palette[i] = gg.Hex(hex)
	}
	return r
}

// ColorFor returns the palette color of an entity. Ids start at 1.
func (r *Resolver) ColorFor(entityID int) gg.RGBA {
	n := len(r.palette)
	idx := ((entityID-1)%n + n) % n
	return r.palette[idx]
}

// Resolve styles m given every marker of its entity (any order).
func (r *Resolver) Resolve(m history.Marker, group []history.Marker) Style {
	return Style{
		Color:   r.ColorFor(m.EntityID),
		Opacity: Opacity(Rank(m, group), len(group)),
	}
}

// Rank returns how many markers in group are newer than m (0 = newest).
func Rank(m history.Marker, group []history.Marker) int {
	rank := 0
	for _, o := range group {
		if o.NewerThan(m) {
			rank++
		}
	}
	return rank
}

// Opacity fades linearly from NewestOpacity at rank 0 to OldestOpacity at
// rank n-1. A lone marker is drawn at NewestOpacity.
func Opacity(rank, n int) float64 {
	if n <= 1 {
		return NewestOpacity
	}
	step := (NewestOpacity - OldestOpacity) / float64(n-1)
	return OldestOpacity + step*float64(n-1-rank)
}
