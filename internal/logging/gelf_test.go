package logging

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	messages []*gelf.Message
	err      error
}

func (c *captureWriter) WriteMessage(m *gelf.Message) error {
	c.messages = append(c.messages, m)
	return c.err
}

func TestGELFHandler_WritesMessage(t *testing.T) {
	w := &captureWriter{}
	logger := slog.New(NewGELFHandler(w, slog.LevelInfo))

	logger.Warn("Missing position data for dart", "entity", 2, "value", 19)

	require.Len(t, w.messages, 1)
	m := w.messages[0]
	assert.Equal(t, "Missing position data for dart", m.Short)
	assert.Equal(t, int32(4), m.Level)
	assert.Equal(t, "1.1", m.Version)
	assert.NotZero(t, m.TimeUnix)
	assert.Equal(t, int64(2), m.Extra["_entity"])
	assert.Equal(t, int64(19), m.Extra["_value"])
}

func TestGELFHandler_FiltersLevel(t *testing.T) {
	w := &captureWriter{}
	logger := slog.New(NewGELFHandler(w, slog.LevelWarn))

	logger.Info("dropped")
	logger.Error("kept")

	require.Len(t, w.messages, 1)
	assert.Equal(t, int32(3), w.messages[0].Level)
}

func TestGELFHandler_AttrsAndGroups(t *testing.T) {
	w := &captureWriter{}
	logger := slog.New(NewGELFHandler(w, slog.LevelDebug)).
		With("component", "poller").
		WithGroup("db")

	logger.Debug("polled", "rows", 3, slog.Group("snap", slog.Int("player", 1)))

	require.Len(t, w.messages, 1)
	extra := w.messages[0].Extra
	assert.Equal(t, int32(7), w.messages[0].Level)
	assert.Equal(t, "poller", extra["_component"])
	assert.Equal(t, int64(3), extra["_db.rows"])
	assert.Equal(t, int64(1), extra["_db.snap.player"])
}

func TestGELFHandler_ReturnsWriteError(t *testing.T) {
	w := &captureWriter{err: errors.New("unreachable")}
	h := NewGELFHandler(w, slog.LevelInfo)

	multi := slog.New(NewMultiHandler(h))
	assert.NotPanics(t, func() { multi.Info("ignored failure") })
}
