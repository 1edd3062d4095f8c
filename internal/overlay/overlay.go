// Package overlay assembles the dart marker overlay: surface, history,
// renderer and bridge, all running on one event loop.
package overlay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/glowe/dartviz/internal/bridge"
	"github.com/glowe/dartviz/internal/config"
	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/history"
	"github.com/glowe/dartviz/internal/journal"
	"github.com/glowe/dartviz/internal/render"
	"github.com/glowe/dartviz/internal/sched"
	"github.com/glowe/dartviz/internal/surface"
	"github.com/glowe/dartviz/pkg/core"
	"github.com/glowe/dartviz/pkg/streaming"
)

const instrumentationName = "github.com/glowe/dartviz/internal/overlay"

// Loop is the event loop every overlay callback runs on.
type Loop interface {
	sched.Scheduler
	sched.Poster
	sched.Runner
}

// LayoutHost is a Host whose layout can be changed by layout events.
type LayoutHost interface {
	surface.Host
	SetLayout(box surface.Box, scrollX, scrollY float64)
	SetEnabled(enabled bool)
}

// Options injects collaborators. Zero values use an in-process page built
// from the reference config, the system clock and the global meter.
type Options struct {
	Host      surface.Host
	Clock     sched.Clock
	NewCanvas surface.CanvasFactory
	Meter     metric.Meter
	Logger    *slog.Logger
	// Source tags journal records.
	Source string
}

// Overlay owns one overlay instance.
type Overlay struct {
	loop     Loop
	host     surface.Host
	surface  *surface.Manager
	store    *history.Store
	renderer *render.Renderer
	bridge   *bridge.Bridge
	disp     *dispatcher.Dispatcher
	logger   *slog.Logger
	source   string

	redraws     metric.Int64Counter
	redrawFails metric.Int64Counter
	markerGauge metric.Int64ObservableGauge

	markers atomic.Int64
	entity  atomic.Int64
}

// New builds an overlay on loop and registers its commands with d.
func New(d *dispatcher.Dispatcher, loop Loop, ov config.OverlayConfig, ref config.ReferenceConfig, opts Options) (*Overlay, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = sched.SystemClock{}
	}
	if opts.Meter == nil {
		opts.Meter = otel.Meter(instrumentationName)
	}
	if opts.Host == nil {
		opts.Host = surface.NewPage(surface.Box{
			Left:   ref.Left,
			Top:    ref.Top,
			Width:  ref.Width,
			Height: ref.Height,
		}, ref.Enabled)
	}

	o := &Overlay{
		loop:   loop,
		host:   opts.Host,
		disp:   d,
		logger: opts.Logger,
		source: opts.Source,
	}
	o.entity.Store(-1)

	o.surface = surface.New(opts.Host, loop, surface.Config{
		Debounce:  ov.ResizeDebounce,
		LabelSize: ov.LabelSize,
		MaxSide:   ov.MaxCanvasSide,
		NewCanvas: opts.NewCanvas,
	}, opts.Logger)
	o.store = history.New(ov.MaxMarkersPerEntity, opts.Clock, opts.Logger)
	o.renderer = render.New(render.Options{
		MarkerRadius: ov.MarkerRadius,
		StrokeWidth:  ov.StrokeWidth,
		Palette:      ov.Palette,
	})
	o.bridge = bridge.New(o.store, o.surface, loop, o.Redraw, bridge.Options{
		AnimationDelay: ov.AnimationDelay,
		UndoDelay:      ov.UndoDelay,
	}, opts.Logger)

	o.surface.OnResize(o.Redraw)
	o.bridge.OnMarker(o.forwardMarker)

	if err := o.initMetrics(opts.Meter); err != nil {
		return nil, err
	}

	o.bridge.Register(d, loop)
	d.Register(streaming.TypeLayout, o.handleLayout, dispatcher.Posted(loop), dispatcher.Logged())

	return o, nil
}

func (o *Overlay) initMetrics(m metric.Meter) error {
	var err error

	o.redraws, err = m.Int64Counter(
		"overlay.redraws",
		metric.WithDescription("Total full redraws of the overlay canvas"),
	)
	if err != nil {
		return fmt.Errorf("creating redraw counter: %w", err)
	}

	o.redrawFails, err = m.Int64Counter(
		"overlay.redraw.errors",
		metric.WithDescription("Total redraws that failed to draw at least one marker"),
	)
	if err != nil {
		return fmt.Errorf("creating redraw error counter: %w", err)
	}

	o.markerGauge, err = m.Int64ObservableGauge(
		"overlay.markers",
		metric.WithDescription("Markers currently shown"),
	)
	if err != nil {
		return fmt.Errorf("creating marker gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(o.markerGauge, o.markers.Load())
		return nil
	}, o.markerGauge)
	if err != nil {
		return fmt.Errorf("registering marker gauge callback: %w", err)
	}
	return nil
}

// Start initializes the surface on the loop. A missing reference leaves the
// overlay inert until a layout event brings it back.
func (o *Overlay) Start(ctx context.Context) error {
	var err error
	if doErr := o.loop.Do(ctx, func() { err = o.surface.Initialize() }); doErr != nil {
		return doErr
	}
	return err
}

// Redraw repaints the whole history. It is a no-op before initialization.
func (o *Overlay) Redraw() {
	markers := o.store.All()
	o.markers.Store(int64(len(markers)))
	if id, ok := o.bridge.CurrentEntity(); ok {
		o.entity.Store(int64(id))
	} else {
		o.entity.Store(-1)
	}

	canvas := o.surface.Canvas()
	if canvas == nil {
		return
	}
	o.redraws.Add(context.Background(), 1)
	if err := o.renderer.Redraw(canvas, markers); err != nil {
		o.redrawFails.Add(context.Background(), 1)
		o.logger.Warn("Redraw incomplete", "markers", len(markers), "error", err)
	}
}

func (o *Overlay) handleLayout(e dispatcher.Event) (any, error) {
	var layout core.Layout
	switch v := e.Payload.(type) {
	case core.Layout:
		layout = v
	case *core.Layout:
		if v == nil {
			return nil, fmt.Errorf("%w: nil layout", bridge.ErrBadPayload)
		}
		layout = *v
	default:
		o.logger.Warn("Dropping layout event", "source", e.Source, "payload", fmt.Sprintf("%T", e.Payload))
		return nil, fmt.Errorf("%w: %T", bridge.ErrBadPayload, e.Payload)
	}

	if lh, ok := o.host.(LayoutHost); ok {
		lh.SetLayout(surface.Box{
			Left:   layout.Left,
			Top:    layout.Top,
			Width:  layout.Width,
			Height: layout.Height,
		}, layout.ScrollX, layout.ScrollY)
		if layout.Visible != nil {
			lh.SetEnabled(*layout.Visible)
		}
	}

	if !o.surface.Ready() {
		// Initialize logs its own failure and leaves the overlay inert.
		_ = o.surface.Initialize()
		return nil, nil
	}
	o.bridge.HandleResize()
	return nil, nil
}

// forwardMarker hands a new marker to the journal when one is registered.
func (o *Overlay) forwardMarker(m history.Marker, t core.Throw) {
	if !o.disp.HasHandler(journal.CommandMarker) {
		return
	}
	raw, _ := json.Marshal(t)
	_, err := o.disp.Dispatch(dispatcher.Event{
		Command: journal.CommandMarker,
		Payload: core.Visualized{
			Time:       m.CreatedAt,
			EntityID:   m.EntityID,
			Value:      m.Value,
			Multiplier: m.Multiplier,
			Radius:     m.Radius,
			Angle:      m.Angle,
			Source:     o.source,
			Raw:        raw,
		},
		Source:    "overlay",
		Timestamp: m.CreatedAt,
	})
	if err != nil {
		o.logger.Debug("Marker not journaled", "entity", m.EntityID, "error", err)
	}
}

// LogAttrs reports the shown entity and marker count for log records. It is
// safe to call from any goroutine.
func (o *Overlay) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{slog.Int64("markers", o.markers.Load())}
	if id := o.entity.Load(); id >= 0 {
		attrs = append(attrs, slog.Int64("entity", id))
	}
	return attrs
}

// Surface returns the surface manager.
func (o *Overlay) Surface() *surface.Manager { return o.surface }

// Store returns the marker history.
func (o *Overlay) Store() *history.Store { return o.store }

// Bridge returns the event bridge.
func (o *Overlay) Bridge() *bridge.Bridge { return o.bridge }

// Host returns the layout host.
func (o *Overlay) Host() surface.Host { return o.host }
