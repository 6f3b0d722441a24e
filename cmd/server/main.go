package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/bankd/service/bank"
	"github.com/brojonat/bankd/service/config"
	"github.com/brojonat/bankd/service/events"
	"github.com/brojonat/bankd/service/metrics"
	"github.com/brojonat/bankd/service/server"
)

func main() {
	// Load and validate configuration from environment.
	// This fails fast if any config is invalid.
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting bank server",
		"bank_addr", cfg.BankAddr,
		"http_addr", cfg.HTTPAddr,
		"log_level", cfg.LogLevel,
	)

	ledger := bank.NewLedger()
	m := metrics.New(nil)

	// Event publishing is optional; without NATS the ledger still
	// notifies in-process subscribers (monitor sessions and SSE).
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		p, err := events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Info("NATS_URL not set, transfer event publishing disabled")
	}

	srv := server.New(cfg.BankAddr, cfg.HTTPAddr, ledger, publisher, m, logger)

	port, err := srv.Listen()
	if err != nil {
		logger.Error("failed to bind listener", "error", err)
		os.Exit(1)
	}

	// Scripts that start the server on port 0 read the real port from
	// this file.
	if cfg.PortFile != "" {
		if err := os.WriteFile(cfg.PortFile, []byte(fmt.Sprintf("%d", port)), 0o644); err != nil {
			logger.Error("failed to write port file", "path", cfg.PortFile, "error", err)
			os.Exit(1)
		}
		logger.Info("wrote bound port", "path", cfg.PortFile, "port", port)
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
