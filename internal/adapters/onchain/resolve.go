package onchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// ResolveReserves fills in every reserve's missing variable debt token from
// the pool and returns the immutable reserve config.
func ResolveReserves(ctx context.Context, pool ports.LendingPool, reserves []domain.Reserve) (domain.ReserveConfig, error) {
	resolved := make([]domain.Reserve, len(reserves))
	copy(resolved, reserves)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range resolved {
		if resolved[i].VariableDebtToken != (common.Address{}) {
			continue
		}
		g.Go(func() error {
			token, err := pool.VariableDebtToken(gctx, resolved[i].Asset)
			if err != nil {
				return fmt.Errorf("reserve %s: %w", resolved[i].Asset.Hex(), err)
			}
			resolved[i].VariableDebtToken = token
			slog.Debug("onchain: resolved variable debt token",
				"asset", resolved[i].Asset.Hex(),
				"token", token.Hex(),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ReserveConfig{}, fmt.Errorf("onchain.ResolveReserves: %w", err)
	}
	return domain.NewReserveConfig(resolved)
}
