package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// WatchKey identifies a tracked Aave position: one borrower on one market.
type WatchKey struct {
	Borrower common.Address
	Market   common.Address
}

func (k WatchKey) String() string {
	return fmt.Sprintf("(%s, %s)", k.Borrower.Hex(), k.Market.Hex())
}

// MorphoKey identifies a Morpho Blue position. Markets are addressed by id, not by token.
type MorphoKey struct {
	Borrower common.Address
	MarketID common.Hash
}

func (k MorphoKey) String() string {
	return fmt.Sprintf("(%s, %s)", k.Borrower.Hex(), k.MarketID.Hex())
}

// Reserve is a tracked market and the token that accounts its variable debt.
type Reserve struct {
	Asset             common.Address
	VariableDebtToken common.Address
}

// ReserveConfig is the set of tracked markets. It is built once at startup
// and never mutated, so it is safe to share without locking.
type ReserveConfig struct {
	order      []common.Address
	debtTokens map[common.Address]common.Address
}

// NewReserveConfig copies reserves into an immutable config.
// Duplicate assets are rejected.
func NewReserveConfig(reserves []Reserve) (ReserveConfig, error) {
	rc := ReserveConfig{
		order:      make([]common.Address, 0, len(reserves)),
		debtTokens: make(map[common.Address]common.Address, len(reserves)),
	}
	for _, r := range reserves {
		if _, dup := rc.debtTokens[r.Asset]; dup {
			return ReserveConfig{}, fmt.Errorf("domain.NewReserveConfig: duplicate reserve %s", r.Asset.Hex())
		}
		rc.order = append(rc.order, r.Asset)
		rc.debtTokens[r.Asset] = r.VariableDebtToken
	}
	return rc, nil
}

// Tracks reports whether market is one of the configured reserves.
func (rc ReserveConfig) Tracks(market common.Address) bool {
	_, ok := rc.debtTokens[market]
	return ok
}

// DebtToken returns the variable debt token for market.
// ok is false for untracked markets and for tracked markets without a known token.
func (rc ReserveConfig) DebtToken(market common.Address) (common.Address, bool) {
	token, ok := rc.debtTokens[market]
	if !ok || token == (common.Address{}) {
		return common.Address{}, false
	}
	return token, true
}

// Markets returns the tracked markets in configuration order.
func (rc ReserveConfig) Markets() []common.Address {
	out := make([]common.Address, len(rc.order))
	copy(out, rc.order)
	return out
}

// Len returns the number of tracked markets.
func (rc ReserveConfig) Len() int {
	return len(rc.order)
}

// UserReserve is one entry of a borrower's per-reserve snapshot as reported
// by the UI pool data provider.
type UserReserve struct {
	Asset               common.Address
	CollateralEnabled   bool
	ScaledATokenBalance *Amount
	ScaledVariableDebt  *Amount
}

// IsEligibleCollateral reports whether the reserve can be seized.
func (r UserReserve) IsEligibleCollateral() bool {
	return r.CollateralEnabled && r.ScaledATokenBalance != nil && !r.ScaledATokenBalance.IsZero()
}

// AccountData is the pool's aggregate view of a borrower.
type AccountData struct {
	TotalCollateralBase *Amount
	TotalDebtBase       *Amount
	HealthFactor        *Amount
}
