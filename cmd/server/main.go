package main

import (
	"log/slog"
	"os"

	"ghgquant/internal/app"
	"ghgquant/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to start report server", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Report server exited with error", "error", err)
		os.Exit(1)
	}
}
