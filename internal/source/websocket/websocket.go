// Package websocket receives game events pushed by the engine over a
// WebSocket and dispatches them.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/source"
	"github.com/glowe/dartviz/pkg/streaming"
)

const (
	sendChSize     = 64
	maxBackoff     = 30 * time.Second
	writeWait      = 10 * time.Second
	defaultBackoff = time.Second
)

// Name is the event source name.
const Name = "websocket"

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("websocket source closed")

// Config holds WebSocket source configuration.
type Config struct {
	URL    string
	Secret string
	// Backoff is the first reconnect delay. It doubles up to 30s.
	Backoff time.Duration
	// MaxReconnect bounds consecutive failed dials. Zero retries forever.
	MaxReconnect int
}

// Source keeps a connection to the engine open and dispatches every message
// it receives. Each message is acknowledged.
type Source struct {
	cfg    Config
	emit   source.Emitter
	logger *slog.Logger

	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	closed bool
}

// New creates a WebSocket source.
func New(cfg Config, emit source.Emitter, logger *slog.Logger) *Source {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		cfg:    cfg,
		emit:   emit,
		logger: logger,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
	}
}

// Run connects and reads until ctx is cancelled or Close is called,
// reconnecting with exponential backoff after failures.
func (s *Source) Run(ctx context.Context) error {
	defer func() { _ = s.Close() }()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	backoff := s.cfg.Backoff
	failures := 0
	for {
		if s.isDone() {
			return nil
		}
		conn, err := s.dial(ctx)
		if err != nil {
			if s.isDone() {
				return nil
			}
			failures++
			if s.cfg.MaxReconnect > 0 && failures >= s.cfg.MaxReconnect {
				s.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", s.cfg.MaxReconnect)
				return fmt.Errorf("giving up after %d attempts: %w", failures, err)
			}
			s.logger.Warn("WebSocket dial failed", "attempt", failures, "backoff", backoff, "error", err)
			if !s.sleep(backoff) {
				return nil
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		failures = 0
		backoff = s.cfg.Backoff
		s.logger.Info("WebSocket connected", "url", s.cfg.URL)

		stop := make(chan struct{})
		go s.writeLoop(conn, stop)
		err = s.readLoop(conn)
		close(stop)
		_ = conn.Close()

		if s.isDone() {
			return nil
		}
		s.logger.Warn("WebSocket read error, reconnecting", "error", err)
		if !s.sleep(backoff) {
			return nil
		}
	}
}

// dial performs a single WebSocket dial with the secret query param.
func (s *Source) dial(ctx context.Context) (*ws.Conn, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if s.cfg.Secret != "" {
		q := u.Query()
		q.Set("secret", s.cfg.Secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// readLoop decodes and dispatches messages until the connection fails.
func (s *Source) readLoop(conn *ws.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		msgType, payload, err := streaming.Decode(message)
		if err != nil {
			s.logger.Warn("Skipping undecodable message", "type", msgType, "error", err)
			continue
		}

		if _, err := s.emit.Dispatch(dispatcher.Event{
			Command:   msgType,
			Payload:   payload,
			Source:    Name,
			Timestamp: time.Now(),
		}); err != nil {
			s.logger.Warn("Failed to dispatch message", "type", msgType, "error", err)
			continue
		}

		s.ack(msgType)
	}
}

// writeLoop drains sendCh to conn until stop or shutdown.
func (s *Source) writeLoop(conn *ws.Conn, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-s.done:
			return
		case data := <-s.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				s.logger.Warn("WebSocket write error", "error", err)
				return
			}
		}
	}
}

// ack queues an acknowledgement. Non-blocking; drops if the channel is full.
func (s *Source) ack(msgType string) {
	data, err := json.Marshal(streaming.NewAck(msgType))
	if err != nil {
		return
	}
	select {
	case s.sendCh <- data:
	default:
		s.logger.Warn("WebSocket send channel full, dropping ack", "for", msgType)
	}
}

func (s *Source) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.done:
		return false
	}
}

func (s *Source) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close sends a close frame and stops Run.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
