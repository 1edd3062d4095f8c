// Package surface owns the drawing surface laid over the reference image and
// keeps its size and position in step with the image's box.
package surface

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/glowe/dartviz/internal/sched"
)

const (
	// DefaultZIndex stacks the surface above the reference image.
	DefaultZIndex = 5
	// DefaultDebounce is the quiet period before a resize is resolved.
	DefaultDebounce = 100 * time.Millisecond
	// DefaultLabelSize is the label font size in points.
	DefaultLabelSize = 10.0
	// DefaultMaxSide is the largest canvas side accepted, in pixels.
	DefaultMaxSide = 8192
)

var (
	// ErrReferenceNotFound is returned when the host has no reference element.
	ErrReferenceNotFound = errors.New("reference element not found")
	// ErrNoDrawingContext is returned when the canvas cannot be created.
	ErrNoDrawingContext = errors.New("drawing context unavailable")
	// ErrBoxOutOfRange is returned when the reference box cannot be
	// rasterized.
	ErrBoxOutOfRange = errors.New("reference box out of range")
)

// Box is an element's rectangle in viewport coordinates.
type Box struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Element is anything with a live bounding box.
type Element interface {
	BoundingBox() Box
}

// Placement describes where the host should put the surface.
type Placement struct {
	After         Element
	Left          float64
	Top           float64
	Width         float64
	Height        float64
	ZIndex        int
	PointerEvents bool
}

// Host is the layout the surface lives in.
type Host interface {
	FindReference() (Element, bool)
	ScrollOffset() (x, y float64)
	Attach(p Placement)
}

// State is the surface geometry at the last resize.
type State struct {
	Reference Box     `json:"reference"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Left      float64 `json:"left"`
	Top       float64 `json:"top"`
}

// CanvasFactory creates a canvas of the given pixel size.
type CanvasFactory func(width, height int) (*gg.Context, error)

// Config tunes a Manager. Zero values use the package defaults.
type Config struct {
	ZIndex    int
	Debounce  time.Duration
	LabelSize float64
	MaxSide   int
	NewCanvas CanvasFactory
}

// Manager tracks the reference element and owns the canvas.
type Manager struct {
	host   Host
	sched  sched.Scheduler
	cfg    Config
	logger *slog.Logger

	// mu guards canvas and state for readers outside the loop (snapshots).
	mu       sync.RWMutex
	ref      Element
	canvas   *gg.Context
	state    State
	onResize []func()
	resizer  *sched.Coalescer
}

// New creates a Manager. Nothing is drawn until Initialize succeeds.
func New(host Host, s sched.Scheduler, cfg Config, logger *slog.Logger) *Manager {
	if cfg.ZIndex == 0 {
		cfg.ZIndex = DefaultZIndex
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.LabelSize <= 0 {
		cfg.LabelSize = DefaultLabelSize
	}
	if cfg.MaxSide <= 0 {
		cfg.MaxSide = DefaultMaxSide
	}
	if cfg.NewCanvas == nil {
		cfg.NewCanvas = defaultCanvas
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		host:   host,
		sched:  s,
		cfg:    cfg,
		logger: logger,
	}
	m.resizer = sched.NewCoalescer(s, cfg.Debounce, m.Resize)
	return m
}

func defaultCanvas(width, height int) (*gg.Context, error) {
	return gg.NewContext(width, height), nil
}

// Initialize finds the reference element, creates the canvas if needed,
// attaches it after the reference and sizes it.
func (m *Manager) Initialize() error {
	ref, ok := m.host.FindReference()
	if !ok || ref == nil {
		m.logger.Warn("Dart visualization: could not find dartboard image")
		return ErrReferenceNotFound
	}
	m.ref = ref

	if m.Canvas() == nil {
		box := ref.BoundingBox()
		w, h, ok := pixelSize(box, m.cfg.MaxSide)
		if !ok {
			m.logger.Warn("Dart visualization: reference box out of range",
				"width", box.Width, "height", box.Height, "maxSide", m.cfg.MaxSide)
			return ErrBoxOutOfRange
		}
		canvas, err := m.cfg.NewCanvas(w, h)
		if err != nil || canvas == nil {
			m.logger.Warn("Dart visualization: drawing context unavailable", "error", err)
			return fmt.Errorf("%w: %v", ErrNoDrawingContext, err)
		}
		m.setFont(canvas)

		m.mu.Lock()
		m.canvas = canvas
		m.mu.Unlock()
	}

	m.Resize()
	return nil
}

func (m *Manager) setFont(canvas *gg.Context) {
	source, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		m.logger.Warn("Failed to load label font, labels disabled", "error", err)
		return
	}
	canvas.SetFont(source.Face(m.cfg.LabelSize))
}

// Resize matches the canvas to the reference element's current box and runs
// the resize hooks, which redraw.
func (m *Manager) Resize() {
	canvas := m.Canvas()
	if canvas == nil || m.ref == nil {
		return
	}

	box := m.ref.BoundingBox()
	scrollX, scrollY := m.host.ScrollOffset()
	w, h, ok := pixelSize(box, m.cfg.MaxSide)
	if !ok {
		m.logger.Warn("Ignoring out of range reference box",
			"width", box.Width, "height", box.Height, "maxSide", m.cfg.MaxSide)
		return
	}

	if err := canvas.Resize(w, h); err != nil {
		m.logger.Warn("Failed to resize canvas", "width", w, "height", h, "error", err)
		return
	}

	state := State{
		Reference: box,
		Width:     w,
		Height:    h,
		Left:      box.Left + scrollX,
		Top:       box.Top + scrollY,
	}
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.host.Attach(Placement{
		After:         m.ref,
		Left:          state.Left,
		Top:           state.Top,
		Width:         box.Width,
		Height:        box.Height,
		ZIndex:        m.cfg.ZIndex,
		PointerEvents: false,
	})

	m.logger.Debug("Resized surface", "width", w, "height", h, "left", state.Left, "top", state.Top)

	for _, f := range m.onResize {
		f()
	}
}

// Invalidate requests a coalesced resize.
func (m *Manager) Invalidate() {
	m.resizer.Trigger()
}

// ResizePending reports whether a coalesced resize is waiting for its frame.
func (m *Manager) ResizePending() bool {
	return m.resizer.Pending()
}

// OnResize registers a hook run after every resize.
func (m *Manager) OnResize(f func()) {
	m.onResize = append(m.onResize, f)
}

// Ready reports whether Initialize succeeded.
func (m *Manager) Ready() bool {
	return m.Canvas() != nil
}

// Canvas returns the canvas, or nil before initialization.
func (m *Manager) Canvas() *gg.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canvas
}

// State returns the surface geometry at the last resize.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// pixelSize rounds a box to whole pixels, at least one in each direction. It
// reports false when a side is infinite or larger than maxSide.
func pixelSize(b Box, maxSide int) (int, int, bool) {
	w, okW := side(b.Width, maxSide)
	h, okH := side(b.Height, maxSide)
	return w, h, okW && okH
}

func side(v float64, maxSide int) (int, bool) {
	if math.IsNaN(v) || v < 1 {
		return 1, true
	}
	if math.IsInf(v, 0) || math.Round(v) > float64(maxSide) {
		return 0, false
	}
	return int(math.Round(v)), true
}
