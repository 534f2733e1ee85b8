package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alejandrodnm/liqbot/config"
	"github.com/alejandrodnm/liqbot/internal/application/cycle"
	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "bootstrap, run one evaluate-only cycle and exit")
	history := flag.Bool("history", false, "print recent cycles from the journal and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print a full candidate table (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *history {
		runHistory(ctx, cfg)
		return
	}

	slog.Info("liqbot starting",
		"config", *configPath,
		"chain_id", cfg.Chain.ChainID,
		"reserves", len(cfg.Aave.Reserves),
		"dry_run", cfg.Liquidation.DryRun,
		"once", *once,
	)

	a, err := build(ctx, cfg, *table || *once, *once)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.close()

	if *once {
		if err := runOnce(ctx, a); err != nil {
			slog.Error("cycle failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
		slog.Error("failed to start metrics server", "err", err, "addr", cfg.Metrics.Addr)
		os.Exit(1)
	}

	run(ctx, a, cfg)
	slog.Info("liqbot stopped cleanly")
}

// run starts the reconciler, block watcher and dispatcher and blocks until
// a signal arrives. A subsystem that fails is logged and left stopped; the
// others keep running.
func run(ctx context.Context, a *app, cfg *config.Config) {
	queue := cycle.NewQueue()
	watcher := cycle.NewBlockWatcher(a.heads, queue, cfg.ResubscribeDelay())
	dispatcher := cycle.NewDispatcher(queue, a.liquidator)

	slog.Debug("liqbot: morpho watchlist ready", "tracked", a.morpho.Len())

	var wg sync.WaitGroup
	supervise := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				slog.Error("liqbot: subsystem exited", "subsystem", name, "err", err)
				return
			}
			slog.Debug("liqbot: subsystem stopped", "subsystem", name)
		}()
	}

	supervise("reconciler", a.reconciler.Start)
	supervise("block_watcher", watcher.Run)
	supervise("dispatcher", dispatcher.Run)

	<-ctx.Done()
	slog.Info("liqbot: shutting down, waiting for in-flight cycle")
	if err := queue.Send(domain.CommandShutdown); err != nil {
		slog.Debug("liqbot: shutdown command not queued", "err", err)
	}
	queue.Close()
	wg.Wait()
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
