package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alejandrodnm/liqbot/config"
	"github.com/alejandrodnm/liqbot/internal/adapters/notify"
)

const historyWindow = 24 * time.Hour

// runOnce seeds the watchlist, prunes it and runs a single evaluate-only cycle.
func runOnce(ctx context.Context, a *app) error {
	slog.Info("=== ONCE MODE: evaluate only ===")

	if err := a.reconciler.Bootstrap(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	a.reconciler.Prune(ctx)

	return a.liquidator.RunCycle(ctx)
}

// runHistory prints the journal's recent cycles and attempt totals.
func runHistory(ctx context.Context, cfg *config.Config) {
	j, err := openJournal(cfg)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer j.Close()

	cycles, err := j.RecentCycles(ctx, 20)
	if err != nil {
		slog.Error("failed to read cycles", "err", err)
		os.Exit(1)
	}
	ok, failed, err := j.AttemptStats(ctx, time.Now().Add(-historyWindow))
	if err != nil {
		slog.Error("failed to read attempts", "err", err)
		os.Exit(1)
	}

	notify.NewConsole(true).PrintHistory(cycles, ok, failed)
}
