package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	devilconsole "github.com/devilai/devil-console"
	"github.com/devilai/devil-console/internal/handlers"
	"github.com/devilai/devil-console/internal/metrics"
	"github.com/devilai/devil-console/internal/roster"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.1.0"

func main() {
	// A .env file is optional, the process environment is used as is without one.
	_ = godotenv.Load()

	cfgPath := os.Getenv("DEVIL_CONSOLE_CONFIG")
	if cfgPath == "" {
		cfgDir, err := os.UserConfigDir()
		if err != nil {
			log.Fatal(fmt.Errorf("error getting user config dir: %w", err))
		}
		cfgPath = filepath.Join(cfgDir, "devilconsole", "config.yaml")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, logCloser := newLogger(cfg.Log)
	defer logCloser.Close()
	slog.SetDefault(logger)

	recorder, shutdownMetrics, err := newRecorder(cfg.Metrics)
	if err != nil {
		log.Fatal(err)
	}

	provider, err := cfg.LLM.provider(cfg.SystemPrompt, logger)
	if err != nil {
		log.Fatal(fmt.Errorf("error creating %s provider: %w", cfg.LLM.name(), err))
	}

	agents, err := cfg.seedAgents()
	if err != nil {
		log.Fatal(err)
	}

	m, err := handlers.NewMain(provider, roster.New(agents), handlers.Options{
		ProviderName:   cfg.LLM.name(),
		WelcomeMessage: cfg.WelcomeMessage,
		Telemetry:      cfg.telemetryOptions(),
		Recorder:       recorder,
		Logger:         logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Serve static files
	staticFS, err := fs.Sub(devilconsole.StaticFS, "static")
	if err != nil {
		log.Fatal(err)
	}
	fileServer := http.FileServer(http.FS(staticFS))

	mux := http.NewServeMux()
	mux.Handle("GET /static/", http.StripPrefix("/static/", fileServer))
	mux.HandleFunc("GET /", m.HandleHome)
	mux.HandleFunc("/chats", m.HandleChats)
	mux.HandleFunc("GET /messages/{id}", m.HandleMessage)
	mux.HandleFunc("GET /sse/messages", m.HandleSSE)
	mux.HandleFunc("GET /dashboard", m.HandleDashboard)
	mux.HandleFunc("GET /sse/telemetry", m.HandleTelemetry)
	mux.HandleFunc("GET /settings", m.HandleSettings)
	mux.HandleFunc("POST /agents", m.HandleAddAgent)
	mux.HandleFunc("POST /agents/{id}/delete", m.HandleRemoveAgent)
	mux.HandleFunc("DELETE /agents/{id}", m.HandleRemoveAgent)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv.RegisterOnShutdown(func() {
		if err := m.Shutdown(context.Background()); err != nil {
			logger.Error("Failed to shutdown sse server", slog.String("err", err.Error()))
		}
	})

	// Channel to listen for errors coming from the listener
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("Server starting",
			slog.String("addr", srv.Addr),
			slog.String("provider", cfg.LLM.name()))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", slog.String("err", err.Error()))

	case sig := <-shutdown:
		logger.Info("Start shutdown", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Gracefully shutdown the server
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", slog.String("err", err.Error()))
			if err := srv.Close(); err != nil {
				logger.Error("Forcing server close", slog.String("err", err.Error()))
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownMetrics(ctx); err != nil {
		logger.Error("Failed to shutdown metrics", slog.String("err", err.Error()))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger builds the process logger. Records are written as JSON to stderr and, when a file is
// configured, to a size-rotated log file as well.
func newLogger(cfg logConfig) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	if cfg.File == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	return slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, file), opts)), file
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newRecorder exports metrics to a rotated file when one is configured, otherwise metrics are
// dropped.
func newRecorder(cfg metricsConfig) (*metrics.Recorder, func(context.Context) error, error) {
	if cfg.File == "" {
		return metrics.Noop(), func(context.Context) error { return nil }, nil
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	mp, err := metrics.NewProvider(context.Background(), file,
		time.Duration(cfg.IntervalSeconds)*time.Second, version)
	if err != nil {
		return nil, nil, err
	}

	recorder, err := metrics.NewRecorder(metrics.Meter(mp))
	if err != nil {
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		err := mp.Shutdown(ctx)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return recorder, shutdown, nil
}
