// Package render draws the marker history onto a canvas.
package render

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/glowe/dartviz/internal/geo"
	"github.com/glowe/dartviz/internal/history"
	"github.com/glowe/dartviz/internal/style"
)

// Drawing defaults.
const (
	DefaultMarkerRadius = 5.0
	DefaultStrokeWidth  = 1.5
	DefaultLabelOffset  = 10.0
)

// Canvas is the part of *gg.Context the renderer draws with.
type Canvas interface {
	Width() int
	Height() int
	Clear()
	SetRGBA(r, g, b, a float64)
	SetLineWidth(width float64)
	DrawCircle(x, y, r float64)
	FillPreserve() error
	Stroke() error
	DrawStringAnchored(s string, x, y, ax, ay float64)
}

// Options tunes marker drawing. Zero values use the defaults.
type Options struct {
	MarkerRadius float64
	StrokeWidth  float64
	LabelOffset  float64
	Palette      []string
}

// Renderer is stateless apart from its options.
type Renderer struct {
	opts   Options
	styles *style.Resolver
}

// New creates a Renderer.
func New(opts Options) *Renderer {
	if opts.MarkerRadius <= 0 {
		opts.MarkerRadius = DefaultMarkerRadius
	}
	if opts.StrokeWidth <= 0 {
		opts.StrokeWidth = DefaultStrokeWidth
	}
	if opts.LabelOffset <= 0 {
		opts.LabelOffset = DefaultLabelOffset
	}
	return &Renderer{
		opts:   opts,
		styles: style.NewResolver(opts.Palette),
	}
}

// Redraw clears c and draws every marker. A marker that fails to draw does not
// stop the others; all failures are returned joined.
func (r *Renderer) Redraw(c Canvas, markers []history.Marker) error {
	c.Clear()

	w, h := float64(c.Width()), float64(c.Height())
	groups := make(map[int][]history.Marker)
	for _, m := range markers {
		groups[m.EntityID] = append(groups[m.EntityID], m)
	}

	var errs []error
	for _, m := range markers {
		if err := r.drawMarker(c, m, groups[m.EntityID], w, h); err != nil {
			errs = append(errs, fmt.Errorf("marker %d of entity %d: %w", m.Seq, m.EntityID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Renderer) drawMarker(c Canvas, m history.Marker, group []history.Marker, w, h float64) error {
	p := geo.ToSurfacePoint(m.Radius, m.Angle, w, h)
	s := r.styles.Resolve(m, group)
	fill := s.Fill()

	c.SetRGBA(fill.R, fill.G, fill.B, fill.A)
	c.DrawCircle(p.X, p.Y, r.opts.MarkerRadius)
	if err := c.FillPreserve(); err != nil {
		return err
	}

	c.SetRGBA(1, 1, 1, 1)
	c.SetLineWidth(r.opts.StrokeWidth)
	if err := c.Stroke(); err != nil {
		return err
	}

	if style.Rank(m, group) == 0 {
		c.SetRGBA(1, 1, 1, 1)
		c.DrawStringAnchored(Label(m.Value, m.Multiplier), p.X, p.Y-r.opts.LabelOffset, 0.5, 0.5)
	}
	return nil
}

// Label is the text shown above a marker.
func Label(value, multiplier int) string {
	if multiplier > 1 {
		return strconv.Itoa(value) + "×" + strconv.Itoa(multiplier)
	}
	return strconv.Itoa(value)
}
