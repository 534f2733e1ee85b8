// Package reconciler keeps the Aave watchlist in sync with the chain.
//
// Startup: subscribe to pool events, bootstrap from the indexer, prune
// entries without debt, then apply events as they arrive. The watchlist may
// over-approximate (a zero-debt entry is re-checked later) but must never
// drop a position that still carries debt: a Repay only removes an entry
// after the on-chain balance reads zero, and any failed read keeps it.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/metrics"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/alejandrodnm/liqbot/internal/watchlist"
	"github.com/ethereum/go-ethereum/common"
)

// Config tunes the reconciler's background work.
type Config struct {
	PruneInterval    time.Duration // 0 disables periodic prune
	ResubscribeDelay time.Duration
	EventBuffer      int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		PruneInterval:    10 * time.Minute,
		ResubscribeDelay: 5 * time.Second,
		EventBuffer:      256,
	}
}

// Reconciler is the sole writer of the Aave watchlist.
type Reconciler struct {
	cfg      Config
	list     *watchlist.Aave
	reserves domain.ReserveConfig
	indexer  ports.PositionIndexer
	events   ports.PoolEventSource
	tokens   ports.TokenReader
}

// New wires a reconciler.
func New(
	cfg Config,
	list *watchlist.Aave,
	reserves domain.ReserveConfig,
	indexer ports.PositionIndexer,
	events ports.PoolEventSource,
	tokens ports.TokenReader,
) *Reconciler {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = DefaultConfig().ResubscribeDelay
	}
	return &Reconciler{
		cfg:      cfg,
		list:     list,
		reserves: reserves,
		indexer:  indexer,
		events:   events,
		tokens:   tokens,
	}
}

// Start runs until ctx is cancelled. Failing to subscribe or to bootstrap is
// returned to the caller; everything after that is logged and survived.
func (r *Reconciler) Start(ctx context.Context) error {
	// Subscribe before bootstrapping so no event between the indexer
	// snapshot and the live stream is lost; they wait in the channel.
	eventsCh := make(chan domain.PoolEvent, r.cfg.EventBuffer)
	sub, err := r.events.SubscribePoolEvents(ctx, eventsCh)
	if err != nil {
		return fmt.Errorf("reconciler.Start: subscribe: %w", err)
	}
	defer func() { sub.Unsubscribe() }()

	if err := r.Bootstrap(ctx); err != nil {
		return fmt.Errorf("reconciler.Start: %w", err)
	}
	r.Prune(ctx)

	slog.Info("reconciler: live sync started", "tracked", r.list.Len(), "markets", r.reserves.Len())

	var pruneC <-chan time.Time
	if r.cfg.PruneInterval > 0 {
		ticker := time.NewTicker(r.cfg.PruneInterval)
		defer ticker.Stop()
		pruneC = ticker.C
	}

	// Events and periodic prunes share this goroutine, so a prune that
	// removes a zero-debt entry always happens-before a later Borrow re-adds it.
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler: stopped")
			return nil

		case evt := <-eventsCh:
			r.HandleEvent(ctx, evt)

		case <-pruneC:
			r.Prune(ctx)

		case err := <-sub.Err():
			slog.Error("reconciler: event subscription lost", "err", err)
			sub.Unsubscribe()
			next, err := r.resubscribe(ctx, eventsCh)
			if err != nil {
				// only ctx cancellation ends resubscribe
				return nil
			}
			sub = next
		}
	}
}

// Bootstrap seeds the watchlist from the indexer. Positions on untracked
// markets are ignored; duplicates are benign.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	start := time.Now()

	positions, err := r.indexer.OpenBorrows(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	added, skipped := 0, 0
	for _, key := range positions {
		if !r.reserves.Tracks(key.Market) {
			skipped++
			continue
		}
		if err := r.list.Add(key); err != nil {
			if !errors.Is(err, watchlist.ErrAlreadyPresent) {
				return fmt.Errorf("bootstrap: add %s: %w", key, err)
			}
			continue
		}
		added++
	}
	r.publishSize()

	slog.Info("reconciler: bootstrap complete",
		"indexed", len(positions),
		"added", added,
		"untracked", skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// Prune removes every entry whose variable debt balance reads zero. Entries
// whose balance cannot be read are kept.
func (r *Reconciler) Prune(ctx context.Context) {
	start := time.Now()
	snapshot := r.list.Snapshot()

	removed := 0
	for _, key := range snapshot {
		if ctx.Err() != nil {
			return
		}
		res, err := r.removeIfClosed(ctx, key)
		if err != nil {
			slog.Warn("reconciler: prune check failed, keeping entry", "position", key, "err", err)
			continue
		}
		if res == closedRemoved {
			removed++
		}
	}
	r.publishSize()

	slog.Info("reconciler: prune complete",
		"checked", len(snapshot),
		"removed", removed,
		"remaining", r.list.Len(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// HandleEvent applies one pool event to the watchlist.
func (r *Reconciler) HandleEvent(ctx context.Context, evt domain.PoolEvent) {
	if !r.reserves.Tracks(evt.Reserve) {
		slog.Debug("reconciler: event for untracked reserve", "kind", evt.Kind, "reserve", evt.Reserve)
		metrics.WatchlistEvents.WithLabelValues("untracked").Inc()
		return
	}

	key := evt.Key()
	switch evt.Kind {
	case domain.PoolEventBorrow:
		if err := r.list.Add(key); err != nil {
			// repeat borrows on an open position are routine
			slog.Debug("reconciler: borrow for tracked position", "position", key, "err", err)
			metrics.WatchlistEvents.WithLabelValues("duplicate").Inc()
			return
		}
		slog.Info("reconciler: position added", "position", key, "block", evt.Block)
		metrics.WatchlistEvents.WithLabelValues("added").Inc()

	case domain.PoolEventRepay:
		res, err := r.removeIfClosed(ctx, key)
		if err != nil {
			slog.Error("reconciler: repay balance check failed, event dropped", "position", key, "err", err)
			metrics.WatchlistEvents.WithLabelValues("check_failed").Inc()
			return
		}
		switch res {
		case closedKept:
			slog.Debug("reconciler: partial repay, position kept", "position", key, "block", evt.Block)
			metrics.WatchlistEvents.WithLabelValues("partial_repay").Inc()
		case closedNotTracked:
			slog.Warn("reconciler: full repay for untracked position", "position", key, "block", evt.Block)
			metrics.WatchlistEvents.WithLabelValues("repay_untracked").Inc()
		}

	default:
		slog.Warn("reconciler: unknown event kind", "kind", evt.Kind)
		return
	}
	r.publishSize()
}

// HasOutstandingDebt reads the borrower's variable debt on market.
// A market with no known debt token is an error, not "no debt".
func (r *Reconciler) HasOutstandingDebt(ctx context.Context, borrower, market common.Address) (bool, error) {
	token, ok := r.reserves.DebtToken(market)
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrMissingDebtToken, market.Hex())
	}
	balance, err := r.tokens.BalanceOf(ctx, token, borrower)
	if err != nil {
		return false, fmt.Errorf("debt balance: %w", err)
	}
	return !balance.IsZero(), nil
}

// closeResult is the outcome of removeIfClosed.
type closeResult int

const (
	closedKept       closeResult = iota // debt still outstanding
	closedRemoved                       // zero debt, removed by this call
	closedNotTracked                    // zero debt, but the key was not in the watchlist
)

// removeIfClosed removes key when its debt is zero.
func (r *Reconciler) removeIfClosed(ctx context.Context, key domain.WatchKey) (closeResult, error) {
	hasDebt, err := r.HasOutstandingDebt(ctx, key.Borrower, key.Market)
	if err != nil {
		return closedKept, err
	}
	if hasDebt {
		return closedKept, nil
	}
	if err := r.list.Remove(key); err != nil {
		if errors.Is(err, watchlist.ErrNotFound) {
			return closedNotTracked, nil
		}
		return closedKept, fmt.Errorf("remove %s: %w", key, err)
	}
	slog.Info("reconciler: position removed", "position", key)
	metrics.WatchlistEvents.WithLabelValues("removed").Inc()
	return closedRemoved, nil
}

// resubscribe retries until the stream is back, then re-bootstraps to pick up
// borrows emitted while disconnected. It only fails when ctx is done.
func (r *Reconciler) resubscribe(ctx context.Context, sink chan domain.PoolEvent) (ports.Subscription, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.ResubscribeDelay):
		}

		sub, err := r.events.SubscribePoolEvents(ctx, sink)
		if err != nil {
			slog.Warn("reconciler: resubscribe failed", "err", err, "retry_in", r.cfg.ResubscribeDelay)
			continue
		}
		slog.Info("reconciler: event subscription restored")

		if err := r.Bootstrap(ctx); err != nil {
			slog.Warn("reconciler: resync after reconnect failed", "err", err)
		}
		return sub, nil
	}
}

func (r *Reconciler) publishSize() {
	metrics.WatchlistSize.Set(float64(r.list.Len()))
}
