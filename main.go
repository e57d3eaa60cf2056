// ABOUTME: Entry point for the Scream multicast audio receiver
// ABOUTME: Loads configuration, sets up logging and runs the application
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/screamrx/screamrx/internal/app"
	"github.com/screamrx/screamrx/internal/config"
	"github.com/screamrx/screamrx/internal/version"
)

func main() {
	cfg, err := config.Load(os.Args[1:], flag.CommandLine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	f, err := os.OpenFile(cfg.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	var out io.Writer = f
	if cfg.NoTUI {
		// Streaming logs mode: log to both stdout and file
		out = io.MultiWriter(os.Stdout, f)
	}
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting", "version", version.Info(), "profile", cfg.Receiver.Profile, "backend", cfg.Output.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create app", "err", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("app exited with error", "err", err)
		os.Exit(1)
	}

	logger.Info("stopped")
}
