// Package main is the entry point of the ranch API server.
//
// main stays small: load configuration, build the logger, hand both to
// server.Build, and run. Everything else lives under internal/.
//
// Configuration is read from ranch.toml (or $RANCH_CONFIG), then .env,
// then the environment. JWT_SECRET has no default and must be set:
//
//	JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/server
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/jacobs-ranch/internal/config"
	"github.com/sakif/jacobs-ranch/internal/server"
	"github.com/sakif/jacobs-ranch/pkg/logging"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	srv, err := server.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
