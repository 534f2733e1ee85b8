package ports

import (
	"context"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Subscription is a live stream handle. Err delivers at most one error and is
// closed on Unsubscribe. Unsubscribe may be called more than once.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// BlockSource delivers new-head notifications.
type BlockSource interface {
	SubscribeNewBlocks(ctx context.Context, sink chan<- domain.Block) (Subscription, error)
}

// PoolEventSource delivers decoded Borrow and Repay events of the lending pool.
type PoolEventSource interface {
	SubscribePoolEvents(ctx context.Context, sink chan<- domain.PoolEvent) (Subscription, error)
}

// LendingPool exposes the pool's read-only views.
type LendingPool interface {
	// UserAccountData returns the aggregate account view, including the
	// 1e18-scaled health factor.
	UserAccountData(ctx context.Context, user common.Address) (domain.AccountData, error)

	// ReserveConfiguration returns the packed configuration bitmap of asset.
	ReserveConfiguration(ctx context.Context, asset common.Address) (*domain.Amount, error)

	// VariableDebtToken returns the variable debt token of asset from getReserveData.
	VariableDebtToken(ctx context.Context, asset common.Address) (common.Address, error)
}

// UserReserveReader returns a borrower's per-reserve collateral/debt snapshot.
type UserReserveReader interface {
	UserReserves(ctx context.Context, user common.Address) ([]domain.UserReserve, error)
}

// TokenReader reads ERC-20 state.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, holder common.Address) (*domain.Amount, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
}

// PriceOracle returns 1e18-scaled asset prices.
type PriceOracle interface {
	AssetPrice(ctx context.Context, asset common.Address) (*domain.Amount, error)
}

// SwapQuoter simulates a swap along path and returns the amount at every hop.
type SwapQuoter interface {
	AmountsOut(ctx context.Context, amountIn *domain.Amount, path []common.Address) ([]*domain.Amount, error)
}

// LiquidationExecutor submits a flash liquidation and waits for it to be mined.
// A reverted transaction is reported as an error.
type LiquidationExecutor interface {
	ExecuteLiquidation(ctx context.Context, c domain.Candidate) (domain.TxReceipt, error)
}
