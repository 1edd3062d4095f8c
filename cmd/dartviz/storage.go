package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/glowe/dartviz/internal/config"
	"github.com/glowe/dartviz/internal/database"
	"github.com/glowe/dartviz/internal/influx"
	"github.com/glowe/dartviz/internal/journal"
	"github.com/glowe/dartviz/internal/source"
	"github.com/glowe/dartviz/internal/source/poller"
	"github.com/glowe/dartviz/internal/source/websocket"
)

// createSource builds the configured event source. The returned close func
// releases whatever the source holds and is never nil.
func createSource(cfg config.SourceConfig, emit source.Emitter) (source.Source, func(), error) {
	noop := func() {}

	switch cfg.Type {
	case source.TypeSQLite, source.TypePostgres:
		db := database.NewManager(ZLogger.With().Str("component", "source").Logger())
		opts := database.Options{Driver: cfg.Type}
		if cfg.Type == source.TypeSQLite {
			opts.SQLitePath = cfg.SQLite.Path
			opts.Pragmas = database.ReaderPragmas
		} else {
			opts.Postgres = cfg.DB
		}
		if err := db.Connect(opts); err != nil {
			return nil, noop, err
		}
		Logger.Info("Polling game database", "driver", cfg.Type, "interval", cfg.PollInterval)
		return poller.New(db.DB, cfg.PollInterval, emit, Logger), func() { _ = db.Close() }, nil

	case source.TypeWebSocket:
		if cfg.WebSocket.URL == "" {
			return nil, noop, fmt.Errorf("source.websocket.url is required")
		}
		ws := websocket.New(websocket.Config{
			URL:    cfg.WebSocket.URL,
			Secret: cfg.WebSocket.Secret,
		}, emit, Logger)
		Logger.Info("Receiving game events over WebSocket", "url", cfg.WebSocket.URL)
		return ws, func() { _ = ws.Close() }, nil

	case source.TypeNone, "":
		Logger.Info("No event source configured; waiting for HTTP commands")
		return nil, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown source type %q", cfg.Type)
	}
}

// createJournal connects the configured journal sink.
func createJournal(ctx context.Context, cfg config.JournalConfig) (*journal.Journal, error) {
	var (
		sink journal.Sink
		err  error
	)

	switch cfg.Type {
	case journal.TypeSQLite, journal.TypePostgres:
		db := database.NewManager(ZLogger.With().Str("component", "journal").Logger())
		opts := database.Options{Driver: cfg.Type}
		if cfg.Type == journal.TypeSQLite {
			opts.SQLitePath = cfg.SQLite.Path
			opts.Pragmas = database.WriterPragmas
		} else {
			opts.Postgres = cfg.DB
		}
		if err = db.Connect(opts); err != nil {
			return nil, err
		}
		sink, err = journal.NewGormSink(db.DB)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		sink = closingSink{Sink: sink, close: db.Close}

	case journal.TypeInflux:
		m := influx.NewManager(
			ZLogger.With().Str("component", "journal").Logger(),
			filepath.Join(config.GetString("logsDir"), "throws.influx.gz"),
		)
		if err = m.Connect(ctx, cfg.Influx); err != nil {
			return nil, err
		}
		sink = journal.NewInfluxSink(m)

	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Type)
	}

	return journal.New(sink, journal.Options{FlushInterval: cfg.FlushInterval}, Logger), nil
}

// closingSink also closes the database the sink writes to.
type closingSink struct {
	journal.Sink
	close func() error
}

func (s closingSink) Close() error {
	if err := s.Sink.Close(); err != nil {
		return err
	}
	return s.close()
}
