// Package executor submits a cycle's candidates concurrently.
//
// At most ConcurrencyLimit liquidations are in flight at once. Slots are
// taken in candidate order, so the most distressed position is dispatched
// first. Each candidate is retried up to MaxAttempts times, then abandoned.
// Candidates are independent: one failing never affects another.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/metrics"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrInvalidConfig is returned by New for out-of-range settings.
var ErrInvalidConfig = errors.New("executor: invalid config")

// Config bounds execution.
type Config struct {
	ConcurrencyLimit int
	MaxAttempts      int
	RetryDelay       time.Duration
}

// DefaultConfig returns 5 concurrent tasks, 2 attempts, 1s between attempts.
func DefaultConfig() Config {
	return Config{ConcurrencyLimit: 5, MaxAttempts: 2, RetryDelay: time.Second}
}

// Engine runs liquidation tasks. It is safe for use by one cycle at a time.
type Engine struct {
	cfg     Config
	exec    ports.LiquidationExecutor
	journal ports.Journal // nil disables the attempt journal
}

// New validates cfg and wires an engine.
func New(cfg Config, exec ports.LiquidationExecutor, journal ports.Journal) (*Engine, error) {
	switch {
	case cfg.ConcurrencyLimit < 1:
		return nil, fmt.Errorf("%w: concurrency limit %d", ErrInvalidConfig, cfg.ConcurrencyLimit)
	case cfg.MaxAttempts < 1:
		return nil, fmt.Errorf("%w: max attempts %d", ErrInvalidConfig, cfg.MaxAttempts)
	case cfg.RetryDelay <= 0:
		return nil, fmt.Errorf("%w: retry delay %s", ErrInvalidConfig, cfg.RetryDelay)
	}
	return &Engine{cfg: cfg, exec: exec, journal: journal}, nil
}

// Execute runs every candidate and waits for all tasks to finish.
func (e *Engine) Execute(ctx context.Context, cycleID string, candidates []domain.Candidate) domain.ExecutionReport {
	if len(candidates) == 0 {
		return domain.ExecutionReport{}
	}

	sem := semaphore.NewWeighted(int64(e.cfg.ConcurrencyLimit))
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		failed    atomic.Int64
	)

	for i, c := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			remaining := len(candidates) - i
			slog.Warn("executor: cycle cancelled, candidates not dispatched", "remaining", remaining, "err", err)
			failed.Add(int64(remaining))
			break
		}

		wg.Add(1)
		go func(c domain.Candidate) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					slog.Error("executor: task panicked",
						"borrower", c.Borrower.Hex(),
						"debt_asset", c.DebtAsset.Hex(),
						"panic", r,
					)
					metrics.Attempts.WithLabelValues("panic").Inc()
					failed.Add(1)
				}
			}()

			if e.liquidate(ctx, cycleID, c) {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
		}(c)
	}
	wg.Wait()

	report := domain.ExecutionReport{
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	slog.Info("executor: cycle executed",
		"cycle_id", cycleID,
		"candidates", len(candidates),
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report
}

// liquidate runs the attempt loop for one candidate and reports success.
func (e *Engine) liquidate(ctx context.Context, cycleID string, c domain.Candidate) bool {
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		receipt, err := e.exec.ExecuteLiquidation(ctx, c)
		e.record(ctx, cycleID, c, attempt, receipt, err)

		if err == nil {
			metrics.Attempts.WithLabelValues("success").Inc()
			slog.Info("executor: liquidation confirmed",
				"borrower", c.Borrower.Hex(),
				"debt_asset", c.DebtAsset.Hex(),
				"collateral_asset", c.CollateralAsset.Hex(),
				"tx", receipt.TxHash.Hex(),
				"block", receipt.Block,
				"attempt", attempt,
			)
			return true
		}

		metrics.Attempts.WithLabelValues("failure").Inc()
		slog.Warn("executor: liquidation attempt failed",
			"borrower", c.Borrower.Hex(),
			"debt_asset", c.DebtAsset.Hex(),
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"err", err,
		)

		if attempt == e.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.cfg.RetryDelay):
		}
	}

	metrics.Attempts.WithLabelValues("abandoned").Inc()
	slog.Error("executor: liquidation abandoned",
		"borrower", c.Borrower.Hex(),
		"debt_asset", c.DebtAsset.Hex(),
		"attempts", e.cfg.MaxAttempts,
	)
	return false
}

func (e *Engine) record(ctx context.Context, cycleID string, c domain.Candidate, n int, receipt domain.TxReceipt, err error) {
	if e.journal == nil {
		return
	}
	a := domain.Attempt{
		ID:        uuid.NewString(),
		CycleID:   cycleID,
		Candidate: c,
		Number:    n,
		Success:   err == nil,
		TxHash:    receipt.TxHash,
		At:        time.Now().UTC(),
	}
	if err != nil {
		a.Err = err.Error()
	}
	if jerr := e.journal.SaveAttempt(ctx, a); jerr != nil {
		slog.Warn("executor: journal write failed", "err", jerr)
	}
}
