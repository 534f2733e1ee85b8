package onchain

// market.go — price oracle, swap router and the UI pool data provider.

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Oracle implements ports.PriceOracle.
type Oracle struct {
	c       *Client
	address common.Address
}

// NewOracle binds the price oracle at address.
func NewOracle(c *Client, address common.Address) *Oracle {
	return &Oracle{c: c, address: address}
}

// AssetPrice calls getAssetPrice.
func (o *Oracle) AssetPrice(ctx context.Context, asset common.Address) (*domain.Amount, error) {
	out, err := o.c.call(ctx, oracleABI, o.address, "getAssetPrice", asset)
	if err != nil {
		return nil, fmt.Errorf("onchain.Oracle.AssetPrice: %w", err)
	}
	price, err := toAmount(out[0])
	if err != nil {
		return nil, fmt.Errorf("onchain.Oracle.AssetPrice: %w", err)
	}
	return price, nil
}

// Router implements ports.SwapQuoter against a Uniswap v2 style router.
type Router struct {
	c       *Client
	address common.Address
}

// NewRouter binds the DEX router at address.
func NewRouter(c *Client, address common.Address) *Router {
	return &Router{c: c, address: address}
}

// AmountsOut calls getAmountsOut.
func (r *Router) AmountsOut(ctx context.Context, amountIn *domain.Amount, path []common.Address) ([]*domain.Amount, error) {
	out, err := r.c.call(ctx, routerABI, r.address, "getAmountsOut", amountIn.ToBig(), path)
	if err != nil {
		return nil, fmt.Errorf("onchain.Router.AmountsOut: %w", err)
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("onchain.Router.AmountsOut: unexpected type %T", out[0])
	}
	amounts := make([]*domain.Amount, 0, len(raw))
	for _, v := range raw {
		a, err := toAmount(v)
		if err != nil {
			return nil, fmt.Errorf("onchain.Router.AmountsOut: %w", err)
		}
		amounts = append(amounts, a)
	}
	return amounts, nil
}

// userReserveData mirrors the UI data provider's UserReserveData tuple.
type userReserveData struct {
	UnderlyingAsset                common.Address
	ScaledATokenBalance            *big.Int
	UsageAsCollateralEnabledOnUser bool
	ScaledVariableDebt             *big.Int
}

// DataProvider implements ports.UserReserveReader.
type DataProvider struct {
	c                 *Client
	address           common.Address
	addressesProvider common.Address
}

// NewDataProvider binds the UI pool data provider at address, querying the
// market registered under addressesProvider.
func NewDataProvider(c *Client, address, addressesProvider common.Address) *DataProvider {
	return &DataProvider{c: c, address: address, addressesProvider: addressesProvider}
}

// UserReserves calls getUserReservesData.
func (d *DataProvider) UserReserves(ctx context.Context, user common.Address) ([]domain.UserReserve, error) {
	out, err := d.c.call(ctx, dataProviderABI, d.address, "getUserReservesData", d.addressesProvider, user)
	if err != nil {
		return nil, fmt.Errorf("onchain.DataProvider.UserReserves: %w", err)
	}
	rows := *abi.ConvertType(out[0], new([]userReserveData)).(*[]userReserveData)

	reserves := make([]domain.UserReserve, 0, len(rows))
	for _, row := range rows {
		aBal, err := toAmount(row.ScaledATokenBalance)
		if err != nil {
			return nil, fmt.Errorf("onchain.DataProvider.UserReserves: %w", err)
		}
		vDebt, err := toAmount(row.ScaledVariableDebt)
		if err != nil {
			return nil, fmt.Errorf("onchain.DataProvider.UserReserves: %w", err)
		}
		reserves = append(reserves, domain.UserReserve{
			Asset:               row.UnderlyingAsset,
			CollateralEnabled:   row.UsageAsCollateralEnabledOnUser,
			ScaledATokenBalance: aBal,
			ScaledVariableDebt:  vDebt,
		})
	}
	return reserves, nil
}
