package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/rpps-atas-assistant/internal/config"
	"github.com/kirillkom/rpps-atas-assistant/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stderr, "rpps-indexer", cfg.LogLevel, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		slog.Error("command_failed", "error", err.Error())
		stop()
		os.Exit(1)
	}
}
