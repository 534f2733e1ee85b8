package pipeline

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// collateralChoice is the collateral reserve a liquidation would seize.
type collateralChoice struct {
	asset    common.Address
	seize    *domain.Amount
	value    *domain.Amount
	bonusBps uint64
}

// selectCollateral picks, among the borrower's eligible collateral reserves,
// the one whose estimated seize is worth the most. An eligible reserve that
// cannot be estimated fails the selection; no eligible reserve is
// ErrNoCollateral.
func (p *Pipeline) selectCollateral(
	ctx context.Context,
	borrower common.Address,
	debt debtLeg,
) (collateralChoice, error) {
	reserves, err := p.chain.UserReserves.UserReserves(ctx, borrower)
	if err != nil {
		return collateralChoice{}, fmt.Errorf("user reserves: %w", err)
	}

	var best collateralChoice
	found := false
	for _, r := range reserves {
		if !r.IsEligibleCollateral() {
			continue
		}
		choice, err := p.estimateCollateral(ctx, r.Asset, debt)
		if err != nil {
			return collateralChoice{}, fmt.Errorf("collateral %s: %w", r.Asset.Hex(), err)
		}
		if !found || choice.value.Gt(best.value) {
			best, found = choice, true
		}
	}
	if !found {
		return collateralChoice{}, domain.ErrNoCollateral
	}
	return best, nil
}

func (p *Pipeline) estimateCollateral(ctx context.Context, asset common.Address, debt debtLeg) (collateralChoice, error) {
	price, err := p.chain.Oracle.AssetPrice(ctx, asset)
	if err != nil {
		return collateralChoice{}, fmt.Errorf("collateral price: %w", err)
	}
	decimals, err := p.chain.Tokens.Decimals(ctx, asset)
	if err != nil {
		return collateralChoice{}, fmt.Errorf("collateral decimals: %w", err)
	}
	cfg, err := p.chain.Pool.ReserveConfiguration(ctx, asset)
	if err != nil {
		return collateralChoice{}, fmt.Errorf("collateral configuration: %w", err)
	}
	bonus := domain.LiquidationBonusBps(cfg)

	seize, err := domain.EstimateSeizeAmount(domain.SeizeInput{
		DebtToCover:        debt.toCover,
		DebtPrice:          debt.price,
		CollateralPrice:    price,
		BonusBps:           bonus,
		DebtDecimals:       debt.decimals,
		CollateralDecimals: decimals,
	})
	if err != nil {
		return collateralChoice{}, err
	}
	value, err := domain.CollateralValue(seize, price, decimals)
	if err != nil {
		return collateralChoice{}, err
	}
	return collateralChoice{asset: asset, seize: seize, value: value, bonusBps: bonus}, nil
}
