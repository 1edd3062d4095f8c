package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/glowe/dartviz/internal/config"
	"github.com/glowe/dartviz/internal/dispatcher"
	"github.com/glowe/dartviz/internal/journal"
	"github.com/glowe/dartviz/internal/logging"
	"github.com/glowe/dartviz/internal/monitor"
	intOtel "github.com/glowe/dartviz/internal/otel"
	"github.com/glowe/dartviz/internal/overlay"
	"github.com/glowe/dartviz/internal/sched"
	"github.com/glowe/dartviz/internal/server"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "dartviz"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger feeds the dispatcher, database and InfluxDB layers
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()
)

const shutdownTimeout = 10 * time.Second

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	addr := flag.String("addr", "http://localhost:8090", "overlay base URL for control commands")
	flag.Parse()

	args := flag.Args()
	if len(args) > 0 && args[0] != "serve" {
		os.Exit(runCtl(*addr, args))
	}

	if err := run(*configDir); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

func setupLogging(configDir string) {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled && LogFile != nil {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			MetricInterval: otelCfg.MetricInterval,
			LogWriter:      LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}
	if OTelProvider == nil {
		OTelProvider, _ = intOtel.New(intOtel.Config{})
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider.Enabled() {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	level := config.GetString("logLevel")
	if LogFile != nil {
		SlogManager.Setup(LogFile, level, otelLogProvider)
	} else {
		SlogManager.Setup(nil, level, otelLogProvider)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath)

	graylogCfg := config.GetGraylogConfig()
	if graylogCfg.Enabled {
		w, err := logging.NewGELFWriter(graylogCfg.Address, AppName)
		if err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err, "address", graylogCfg.Address)
		} else {
			SlogManager.AddHandler(logging.NewGELFHandler(w, logging.ParseLevel(level)))
			Logger = SlogManager.Logger()
			Logger.Info("Graylog logging enabled", "address", graylogCfg.Address)
		}
	}

	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	zout := os.Stdout
	if LogFile != nil {
		zout = LogFile
	}
	ZLogger = zerolog.New(zout).Level(zlevel).With().Timestamp().Str("app", AppName).Logger()
}

func run(configDir string) error {
	setupLogging(configDir)
	Logger.Info("Starting up...", "version", Version, "buildDate", BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	ovCfg := config.GetOverlayConfig()
	loop := sched.NewLoop(ovCfg.QueueSize, ovCfg.FrameInterval)
	loop.Start()
	defer loop.Close()

	// The provider is bound before the overlay exists so that the loggers
	// handed to its components carry the overlay attributes.
	var shown atomic.Pointer[overlay.Overlay]
	SlogManager.SetContextProvider(func() []slog.Attr {
		if o := shown.Load(); o != nil {
			return o.LogAttrs()
		}
		return nil
	})
	Logger = SlogManager.Logger()

	srcCfg := config.GetSourceConfig()
	ov, err := overlay.New(eventDispatcher, loop, ovCfg, config.GetReferenceConfig(), overlay.Options{
		Meter:  OTelProvider.Meter("github.com/glowe/dartviz/internal/overlay"),
		Logger: Logger,
		Source: srcCfg.Type,
	})
	if err != nil {
		return fmt.Errorf("create overlay: %w", err)
	}
	shown.Store(ov)

	var throwJournal *journal.Journal
	journalCfg := config.GetJournalConfig()
	if journalCfg.Enabled {
		throwJournal, err = createJournal(ctx, journalCfg)
		if err != nil {
			Logger.Error("Failed to set up throw journal, continuing without it", "error", err)
		} else {
			throwJournal.Register(eventDispatcher)
			go throwJournal.Run(ctx)
			Logger.Info("Throw journal enabled", "type", journalCfg.Type)
		}
	}

	if err := ov.Start(ctx); err != nil {
		Logger.Warn("Overlay inactive until the reference image is available", "error", err)
	}

	src, closeSource, err := createSource(srcCfg, eventDispatcher)
	if err != nil {
		return fmt.Errorf("create %s source: %w", srcCfg.Type, err)
	}
	defer closeSource()
	if src != nil {
		go func() {
			if err := src.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				Logger.Error("Event source stopped", "type", srcCfg.Type, "error", err)
			}
		}()
	}

	monitorDeps := monitor.Dependencies{
		Runner:   loop,
		Surface:  ov.Surface(),
		Markers:  ov.Store(),
		Turn:     ov.Bridge(),
		Commands: eventDispatcher,
		Logger:   Logger,
	}
	if throwJournal != nil {
		monitorDeps.Journal = throwJournal
	}
	monitorService := monitor.NewService(monitorDeps)
	if err := monitorService.Start(filepath.Join(config.GetString("logsDir"), "status.json"), monitor.DefaultInterval); err != nil {
		Logger.Warn("Failed to start status monitor", "error", err)
	}

	httpCfg := config.GetHTTPConfig()
	httpServer := server.New(httpCfg.Address, server.Dependencies{
		Runner:        loop,
		Canvas:        ov.Surface().Canvas,
		Status:        monitorService,
		Emitter:       eventDispatcher,
		Logger:        Logger,
		MaxCanvasSide: ovCfg.MaxCanvasSide,
	})
	serverErr := make(chan error, 1)
	go func() { serverErr <- httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		Logger.Info("Shutting down...")
	case err := <-serverErr:
		if err != nil {
			Logger.Error("HTTP server failed", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("HTTP server shutdown error", "error", err)
	}
	monitorService.Stop()
	if throwJournal != nil {
		if err := throwJournal.Close(shutdownCtx); err != nil {
			Logger.Error("Failed to flush throw journal", "error", err)
		}
	}
	if err := OTelProvider.Flush(shutdownCtx); err != nil {
		Logger.Warn("OTel flush error", "error", err)
	}
	if err := OTelProvider.Shutdown(shutdownCtx); err != nil {
		Logger.Warn("OTel shutdown error", "error", err)
	}
	_ = SlogManager.Flush(shutdownCtx)
	Logger.Info("Stopped")
	if LogFile != nil {
		_ = LogFile.Close()
	}
	return nil
}
