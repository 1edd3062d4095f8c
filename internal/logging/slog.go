package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Swapped by tests.
var (
	osStdout io.Writer = os.Stdout
	osPipe             = os.Pipe
)

// SlogManager manages slog-based logging with optional OTel integration.
type SlogManager struct {
	mu     sync.RWMutex
	logger *slog.Logger

	base     []slog.Handler
	extra    []slog.Handler
	provider ContextProvider

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel is parseLevel for callers outside the package.
func ParseLevel(level string) slog.Level {
	return parseLevel(level)
}

// Setup initializes the logging system. Records go to file, or to stdout when
// file is nil, and to OTel when provider is set. Handlers added with
// AddHandler are dropped.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)

	// Common handler options with RFC3339 time formatting
	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(osStdout, handlerOpts))
	}

	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler("dartviz", otelslog.WithLoggerProvider(provider)))
	}

	m.mu.Lock()
	m.logProvider = provider
	m.base = handlers
	m.extra = nil
	m.rebuild()
	m.mu.Unlock()

	m.Logger().Info("Logging initialized", "level", level)
}

// AddHandler fans records out to h as well.
func (m *SlogManager) AddHandler(h slog.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra = append(m.extra, h)
	m.rebuild()
}

// SetContextProvider attaches dynamic attributes to every record.
func (m *SlogManager) SetContextProvider(p ContextProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.provider = p
	m.rebuild()
}

func (m *SlogManager) rebuild() {
	all := make([]slog.Handler, 0, len(m.base)+len(m.extra))
	all = append(all, m.base...)
	all = append(all, m.extra...)

	var h slog.Handler = NewMultiHandler(all...)
	if m.provider != nil {
		h = NewContextHandler(h, m.provider)
	}
	m.logger = slog.New(h)
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if available.
func (m *SlogManager) Flush(ctx context.Context) error {
	m.mu.RLock()
	provider := m.logProvider
	m.mu.RUnlock()
	if provider != nil {
		return provider.ForceFlush(ctx)
	}
	return nil
}
