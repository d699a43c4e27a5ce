// Command notifyd runs the notification pipeline: it consumes domain events,
// resolves delivery preferences, fans notifications out to channel queues and
// delivers them. It also runs the scheduled reminder jobs and serves health
// endpoints.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/notifykit/pkg/environment"
	"github.com/dmitrymomot/notifykit/pkg/events"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(nil)
	if err != nil {
		slog.Error("failed to load config", logger.Error(err))
		return 1
	}

	opts := []logger.Option{
		logger.WithEnvironment(cfg.Environment.String(), cfg.App.ServiceName),
		logger.WithContextExtractors(events.LogExtractor),
	}
	if cfg.App.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.App.LogLevel))
	}
	log := logger.New(opts...)
	logger.SetAsDefault(log)

	ctx = environment.WithContext(ctx, cfg.Environment)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.LogAttrs(ctx, slog.LevelError, "failed to start", logger.Error(err))
		return 1
	}

	log.LogAttrs(ctx, slog.LevelInfo, "notifyd started")
	if err := a.run(ctx); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "notifyd stopped with error", logger.Error(err))
		return 1
	}
	log.LogAttrs(ctx, slog.LevelInfo, "notifyd stopped")
	return 0
}
