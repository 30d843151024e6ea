package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tabledash/internal/app"
	"tabledash/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (defaults apply when empty)")
	mode := flag.String("mode", app.ModeMCP, "run mode: mcp or http")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("could not load .env", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(*configPath)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	if err := a.Run(ctx, *mode); err != nil {
		slog.Error("tabledash exited with error", "err", err)
		os.Exit(1)
	}
}
