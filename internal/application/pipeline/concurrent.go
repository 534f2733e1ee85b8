package pipeline

// concurrent.go — worker pool for health factor reads.
//
// A borrower with several tracked markets has one health factor, so each
// borrower is read once per cycle no matter how many entries it owns.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/metrics"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/common"
)

// fetchHealthFactors reads the health factor of every borrower in parallel.
// Borrowers whose read fails are absent from the result.
//
// workers <= 0 uses runtime.NumCPU() × 2.
func fetchHealthFactors(
	ctx context.Context,
	pool ports.LendingPool,
	borrowers []common.Address,
	workers int,
) map[common.Address]*domain.Amount {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers > len(borrowers) {
		workers = len(borrowers)
	}

	type result struct {
		borrower common.Address
		hf       *domain.Amount
	}

	workCh := make(chan common.Address, len(borrowers))
	resultCh := make(chan result, len(borrowers))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for borrower := range workCh {
				data, err := pool.UserAccountData(ctx, borrower)
				if err != nil {
					slog.Warn("pipeline: health factor unavailable, skipping borrower",
						"borrower", borrower.Hex(),
						"err", err,
					)
					metrics.Rejections.WithLabelValues("health_factor").Inc()
					continue
				}
				if data.HealthFactor == nil {
					continue
				}
				resultCh <- result{borrower: borrower, hf: data.HealthFactor}
			}
		}()
	}

	for _, b := range borrowers {
		workCh <- b
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[common.Address]*domain.Amount, len(borrowers))
	for r := range resultCh {
		out[r.borrower] = r.hf
	}

	slog.Debug("pipeline: health factors fetched",
		"borrowers", len(borrowers),
		"ok", len(out),
		"workers", workers,
	)
	return out
}

// uniqueBorrowers returns each borrower of keys once, in first-seen order.
func uniqueBorrowers(keys []domain.WatchKey) []common.Address {
	seen := make(map[common.Address]struct{}, len(keys))
	out := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k.Borrower]; ok {
			continue
		}
		seen[k.Borrower] = struct{}{}
		out = append(out, k.Borrower)
	}
	return out
}
