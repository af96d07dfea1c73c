// Package main is the entry point for the task manager API server.
//
// The main package stays minimal — its job is to:
// 1. Read configuration from the environment
// 2. Create top-level dependencies (logger, mail transport)
// 3. Start the server
//
// All actual logic lives in imported packages (internal/server,
// internal/handler, etc.), which keeps the app testable and main boring.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/mailer"
	"github.com/sakif/task-manager/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Ensure the data directory exists before SQLite tries to create the
	// database file inside it.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// Email is optional — without an API key the server runs with
	// notifications disabled rather than refusing to start.
	var mail mailer.Mailer
	if cfg.SendGridKey != "" {
		mail = mailer.NewSendGrid(cfg.SendGridKey, cfg.MailFrom, cfg.MailName)
	} else {
		logger.Warn("SENDGRID_API_KEY not set — notification emails are disabled")
		mail = mailer.Disabled{}
	}

	srv, err := server.New(cfg, logger, mail)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
