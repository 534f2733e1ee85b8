package onchain

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Pool reads the lending pool. It implements ports.LendingPool.
type Pool struct {
	c       *Client
	address common.Address
}

// NewPool binds the pool at address.
func NewPool(c *Client, address common.Address) *Pool {
	return &Pool{c: c, address: address}
}

// UserAccountData calls getUserAccountData.
func (p *Pool) UserAccountData(ctx context.Context, user common.Address) (domain.AccountData, error) {
	out, err := p.c.call(ctx, poolABI, p.address, "getUserAccountData", user)
	if err != nil {
		return domain.AccountData{}, fmt.Errorf("onchain.Pool.UserAccountData: %w", err)
	}
	if len(out) != 6 {
		return domain.AccountData{}, fmt.Errorf("onchain.Pool.UserAccountData: expected 6 values, got %d", len(out))
	}

	var data domain.AccountData
	for _, f := range []struct {
		dst **domain.Amount
		idx int
	}{
		{&data.TotalCollateralBase, 0},
		{&data.TotalDebtBase, 1},
		{&data.HealthFactor, 5},
	} {
		v, err := toAmount(out[f.idx])
		if err != nil {
			return domain.AccountData{}, fmt.Errorf("onchain.Pool.UserAccountData: %w", err)
		}
		*f.dst = v
	}
	return data, nil
}

// ReserveConfiguration calls getConfiguration and returns the raw bitmap.
func (p *Pool) ReserveConfiguration(ctx context.Context, asset common.Address) (*domain.Amount, error) {
	out, err := p.c.call(ctx, poolABI, p.address, "getConfiguration", asset)
	if err != nil {
		return nil, fmt.Errorf("onchain.Pool.ReserveConfiguration: %w", err)
	}
	v, err := toAmount(out[0])
	if err != nil {
		return nil, fmt.Errorf("onchain.Pool.ReserveConfiguration: %w", err)
	}
	return v, nil
}

// VariableDebtToken reads variableDebtTokenAddress from getReserveData.
func (p *Pool) VariableDebtToken(ctx context.Context, asset common.Address) (common.Address, error) {
	out, err := p.c.call(ctx, poolABI, p.address, "getReserveData", asset)
	if err != nil {
		return common.Address{}, fmt.Errorf("onchain.Pool.VariableDebtToken: %w", err)
	}
	if len(out) <= reserveDataVariableDebtIndex {
		return common.Address{}, fmt.Errorf("onchain.Pool.VariableDebtToken: short reserve data (%d values)", len(out))
	}
	token, ok := out[reserveDataVariableDebtIndex].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("onchain.Pool.VariableDebtToken: unexpected type %T", out[reserveDataVariableDebtIndex])
	}
	return token, nil
}
