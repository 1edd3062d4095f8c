// Package server exposes the overlay over HTTP: the rendered canvas, a status
// report and control endpoints that feed the dispatcher.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gogpu/gg"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/monitor"
	"github.com/glowe/dartviz/internal/sched"
	"github.com/glowe/dartviz/internal/source"
	"github.com/glowe/dartviz/internal/surface"
	"github.com/glowe/dartviz/pkg/core"
	"github.com/glowe/dartviz/pkg/streaming"
)

// Name is the event source name for requests.
const Name = "http"

const (
	maxBodyBytes      = 1 << 16
	readHeaderTimeout = 5 * time.Second
	requestTimeout    = 5 * time.Second
)

// Statuser builds status reports.
type Statuser interface {
	GetStatus(ctx context.Context) (monitor.Status, error)
}

// Dependencies wires the server to the overlay. MaxCanvasSide bounds layout
// boxes and defaults to surface.DefaultMaxSide.
type Dependencies struct {
	Runner        sched.Runner
	Canvas        func() *gg.Context
	Status        Statuser
	Emitter       source.Emitter
	Logger        *slog.Logger
	MaxCanvasSide int
}

// Server serves the overlay endpoints.
type Server struct {
	deps       Dependencies
	httpServer *http.Server
}

// New creates a server listening on addr once Serve is called.
func New(addr string, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxCanvasSide <= 0 {
		deps.MaxCanvasSide = surface.DefaultMaxSide
	}
	s := &Server{deps: deps}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /overlay.png", s.handleOverlay)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /layout", s.handleLayout)
	mux.HandleFunc("POST /clear", s.handleCommand(streaming.TypeClear))
	mux.HandleFunc("POST /undo", s.handleCommand(streaming.TypeUndo))
	return mux
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.deps.Logger.Info("HTTP server listening", "address", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and serves.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(l)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var (
		buf    bytes.Buffer
		ready  bool
		encErr error
	)
	err := s.deps.Runner.Do(ctx, func() {
		canvas := s.deps.Canvas()
		if canvas == nil {
			return
		}
		ready = true
		encErr = canvas.EncodePNG(&buf)
	})
	switch {
	case err != nil:
		s.fail(w, http.StatusServiceUnavailable, err)
		return
	case !ready:
		s.fail(w, http.StatusServiceUnavailable, errors.New("overlay canvas not initialized"))
		return
	case encErr != nil:
		s.fail(w, http.StatusInternalServerError, encErr)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	st, err := s.deps.Status.GetStatus(ctx)
	if err != nil {
		s.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	var layout core.Layout
	if err := json.Unmarshal(body, &layout); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("decode layout: %w", err))
		return
	}
	if limit := float64(s.deps.MaxCanvasSide); layout.Width > limit || layout.Height > limit {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("layout %gx%g exceeds %d px", layout.Width, layout.Height, s.deps.MaxCanvasSide))
		return
	}
	s.dispatch(w, streaming.TypeLayout, &layout)
}

func (s *Server) handleCommand(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.dispatch(w, command, nil)
	}
}

func (s *Server) dispatch(w http.ResponseWriter, command string, payload any) {
	res, err := s.deps.Emitter.Dispatch(dispatcher.Event{
		Command: command,
		Payload: payload,
		Source:  Name,
	})
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, dispatcher.ErrUnknownCommand) {
			status = http.StatusNotFound
		}
		s.fail(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"command": command, "result": res})
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	s.deps.Logger.Warn("HTTP request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
