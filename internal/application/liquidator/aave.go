// Package liquidator composes one protocol's evaluate-and-execute cycle.
package liquidator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/google/uuid"
)

// Liquidator runs one full cycle per call. The dispatcher never calls it
// concurrently with itself.
type Liquidator interface {
	RunCycle(ctx context.Context) error
}

// CandidateSource produces a cycle's ordered candidates.
type CandidateSource interface {
	Generate(ctx context.Context) ([]domain.Candidate, error)
}

// Executor submits a cycle's candidates.
type Executor interface {
	Execute(ctx context.Context, cycleID string, candidates []domain.Candidate) domain.ExecutionReport
}

// Sizer reports how many positions are tracked.
type Sizer interface {
	Len() int
}

// Aave is the Aave v3 liquidator.
type Aave struct {
	watchlist  Sizer
	candidates CandidateSource
	executor   Executor       // nil runs evaluate-only cycles
	notifier   ports.Notifier // optional
	journal    ports.Journal  // optional
}

// NewAave wires the Aave liquidator. executor, notifier and journal may be nil.
func NewAave(
	watchlist Sizer,
	candidates CandidateSource,
	executor Executor,
	notifier ports.Notifier,
	journal ports.Journal,
) *Aave {
	return &Aave{
		watchlist:  watchlist,
		candidates: candidates,
		executor:   executor,
		notifier:   notifier,
		journal:    journal,
	}
}

// RunCycle generates candidates, reports them and, unless evaluate-only,
// executes them. Only a failure to generate candidates is returned.
func (a *Aave) RunCycle(ctx context.Context) error {
	summary := domain.CycleSummary{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Watchlist: a.watchlist.Len(),
	}

	candidates, err := a.candidates.Generate(ctx)
	if err != nil {
		summary.Err = err.Error()
		a.save(ctx, summary)
		return fmt.Errorf("liquidator.RunCycle: generate: %w", err)
	}
	summary.Candidates = len(candidates)

	if a.notifier != nil {
		if err := a.notifier.NotifyCandidates(ctx, summary.ID, candidates); err != nil {
			slog.Warn("liquidator: notifier error", "err", err)
		}
	}

	switch {
	case a.executor == nil:
		slog.Debug("liquidator: evaluate-only cycle, nothing executed", "cycle_id", summary.ID)
	case len(candidates) > 0:
		report := a.executor.Execute(ctx, summary.ID, candidates)
		summary.Succeeded = report.Succeeded
		summary.Failed = report.Failed
	}

	a.save(ctx, summary)

	slog.Info("liquidator: cycle complete",
		"cycle_id", summary.ID,
		"watchlist", summary.Watchlist,
		"candidates", summary.Candidates,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", time.Since(summary.StartedAt).Round(time.Millisecond),
	)
	return nil
}

func (a *Aave) save(ctx context.Context, summary domain.CycleSummary) {
	if a.journal == nil {
		return
	}
	summary.Duration = time.Since(summary.StartedAt)
	if err := a.journal.SaveCycle(ctx, summary); err != nil {
		slog.Warn("liquidator: journal write failed", "cycle_id", summary.ID, "err", err)
	}
}
