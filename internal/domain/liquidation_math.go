package domain

// liquidation_math.go — fixed-point arithmetic for candidate evaluation.
//
// Health factors and oracle prices are 1e18-scaled; bonus, close factor and
// slippage are basis points out of 10 000. Every product and quotient is
// checked: an overflow or a zero divisor fails the position being evaluated,
// never the cycle.

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit on-chain quantity.
type Amount = uint256.Int

const (
	BpsDenominator     = 10_000
	FullCloseFactorBps = 10_000
	HalfCloseFactorBps = 5_000
	MaxSlippageBps     = 1_000 // 10%

	// liquidation bonus lives in bits 32..47 of the reserve configuration bitmap
	liquidationBonusShift = 32
	liquidationBonusMask  = 0xFFFF
)

var (
	ErrOverflow         = errors.New("arithmetic overflow")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrSlippageTooHigh  = errors.New("slippage above 10%")
	ErrNoCollateral     = errors.New("no eligible collateral")
	ErrNotLiquidatable  = errors.New("position not liquidatable")
	ErrMissingDebtToken = errors.New("no variable debt token configured")
)

// 1.0 and 0.95 in 1e18 fixed point.
var (
	wad                  = uint256.NewInt(1_000_000_000_000_000_000)
	closeFactorThreshold = uint256.NewInt(950_000_000_000_000_000)
)

// NewAmount returns v as an Amount.
func NewAmount(v uint64) *Amount {
	return uint256.NewInt(v)
}

// WAD returns a fresh 1e18.
func WAD() *Amount {
	return new(Amount).Set(wad)
}

// IsLiquidatable reports whether hf is strictly below 1.0.
func IsLiquidatable(hf *Amount) bool {
	return hf != nil && hf.Lt(wad)
}

// CloseFactorBps returns the share of outstanding debt that may be repaid in
// one liquidation: all of it below 0.95, half otherwise.
func CloseFactorBps(hf *Amount) uint64 {
	if hf.Lt(closeFactorThreshold) {
		return FullCloseFactorBps
	}
	return HalfCloseFactorBps
}

// DebtToCover applies the close factor for hf to the outstanding balance.
func DebtToCover(balance, hf *Amount) (*Amount, error) {
	v, err := mul(balance, uint256.NewInt(CloseFactorBps(hf)))
	if err != nil {
		return nil, fmt.Errorf("debt to cover: %w", err)
	}
	return div(v, uint256.NewInt(BpsDenominator))
}

// SeizeInput holds everything needed to estimate seized collateral.
type SeizeInput struct {
	DebtToCover        *Amount
	DebtPrice          *Amount
	CollateralPrice    *Amount
	BonusBps           uint64
	DebtDecimals       uint8
	CollateralDecimals uint8
}

// EstimateSeizeAmount computes
//
//	debtToCover × debtPrice × bonusBps × 10^collDec / (collPrice × 10000 × 10^debtDec)
func EstimateSeizeAmount(in SeizeInput) (*Amount, error) {
	collScale, err := Pow10(in.CollateralDecimals)
	if err != nil {
		return nil, err
	}
	debtScale, err := Pow10(in.DebtDecimals)
	if err != nil {
		return nil, err
	}

	num, err := mulAll(in.DebtToCover, in.DebtPrice, uint256.NewInt(in.BonusBps), collScale)
	if err != nil {
		return nil, fmt.Errorf("seize numerator: %w", err)
	}
	den, err := mulAll(in.CollateralPrice, uint256.NewInt(BpsDenominator), debtScale)
	if err != nil {
		return nil, fmt.Errorf("seize denominator: %w", err)
	}
	seize, err := div(num, den)
	if err != nil {
		return nil, fmt.Errorf("seize: %w", err)
	}
	return seize, nil
}

// CollateralValue is the oracle value of amount tokens with the given decimals.
func CollateralValue(amount, price *Amount, decimals uint8) (*Amount, error) {
	scale, err := Pow10(decimals)
	if err != nil {
		return nil, err
	}
	v, err := mul(amount, price)
	if err != nil {
		return nil, fmt.Errorf("collateral value: %w", err)
	}
	return div(v, scale)
}

// MinAmountOut discounts a quoted swap output by slippageBps.
func MinAmountOut(quoted *Amount, slippageBps uint64) (*Amount, error) {
	if slippageBps > MaxSlippageBps {
		return nil, fmt.Errorf("%w: %d bps", ErrSlippageTooHigh, slippageBps)
	}
	v, err := mul(quoted, uint256.NewInt(BpsDenominator-slippageBps))
	if err != nil {
		return nil, fmt.Errorf("min amount out: %w", err)
	}
	return div(v, uint256.NewInt(BpsDenominator))
}

// IsProfitable is the acceptance gate: the swap must return strictly more
// than the flash-borrowed debt.
func IsProfitable(debtToCover, minAmountOut *Amount) bool {
	return minAmountOut.Gt(debtToCover)
}

// LiquidationBonusBps decodes the bonus from a reserve configuration bitmap.
// 10500 means collateral is seized at a 5% premium.
func LiquidationBonusBps(configuration *Amount) uint64 {
	v := new(Amount).Rsh(configuration, liquidationBonusShift)
	return v.Uint64() & liquidationBonusMask
}

// Pow10 returns 10^n, failing for n > 77.
func Pow10(n uint8) (*Amount, error) {
	ten := uint256.NewInt(10)
	z := uint256.NewInt(1)
	for i := uint8(0); i < n; i++ {
		if _, overflow := z.MulOverflow(z, ten); overflow {
			return nil, fmt.Errorf("10^%d: %w", n, ErrOverflow)
		}
	}
	return z, nil
}

func mul(x, y *Amount) (*Amount, error) {
	z, overflow := new(Amount).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

func mulAll(factors ...*Amount) (*Amount, error) {
	acc := uint256.NewInt(1)
	for _, f := range factors {
		if _, overflow := acc.MulOverflow(acc, f); overflow {
			return nil, ErrOverflow
		}
	}
	return acc, nil
}

func div(x, y *Amount) (*Amount, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	return new(Amount).Div(x, y), nil
}
