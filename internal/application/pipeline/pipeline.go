// Package pipeline turns the watchlist into an ordered list of profitable
// liquidation candidates.
//
// Stages per cycle: snapshot → health factors → keep HF < 1 → sort by HF
// ascending → per entry, size the debt, pick collateral, quote the swap and
// apply the profitability gate. A failure on one position skips it and
// never aborts the cycle.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/metrics"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/alejandrodnm/liqbot/internal/watchlist"
	"github.com/ethereum/go-ethereum/common"
)

var (
	errNothingToCover = errors.New("debt to cover is zero")
	errUnprofitable   = errors.New("swap output does not cover the debt")
	errEmptyQuote     = errors.New("router returned no amounts")
)

// Config holds the pipeline's tunables.
type Config struct {
	SlippageBps   uint64
	HealthWorkers int // 0 = NumCPU*2
}

// Chain groups the read-only chain views the pipeline consumes.
type Chain struct {
	Pool         ports.LendingPool
	UserReserves ports.UserReserveReader
	Tokens       ports.TokenReader
	Oracle       ports.PriceOracle
	Router       ports.SwapQuoter
}

// Pipeline generates candidates. It holds no per-cycle state.
type Pipeline struct {
	cfg      Config
	list     *watchlist.Aave
	reserves domain.ReserveConfig
	chain    Chain
}

// New validates cfg and wires a pipeline.
func New(cfg Config, list *watchlist.Aave, reserves domain.ReserveConfig, chain Chain) (*Pipeline, error) {
	if cfg.SlippageBps > domain.MaxSlippageBps {
		return nil, fmt.Errorf("pipeline.New: %w: %d bps", domain.ErrSlippageTooHigh, cfg.SlippageBps)
	}
	return &Pipeline{cfg: cfg, list: list, reserves: reserves, chain: chain}, nil
}

// position is a watchlist entry paired with its borrower's health factor.
type position struct {
	key domain.WatchKey
	hf  *domain.Amount
}

// debtLeg is the debt side of a liquidation, shared by every collateral estimate.
type debtLeg struct {
	toCover  *domain.Amount
	price    *domain.Amount
	decimals uint8
}

// Generate runs one evaluation pass and returns accepted candidates ordered
// by health factor, most distressed first.
func (p *Pipeline) Generate(ctx context.Context) ([]domain.Candidate, error) {
	start := time.Now()

	snapshot := p.list.Snapshot()
	if len(snapshot) == 0 {
		slog.Debug("pipeline: watchlist empty")
		return nil, nil
	}

	hfs := fetchHealthFactors(ctx, p.chain.Pool, uniqueBorrowers(snapshot), p.cfg.HealthWorkers)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pipeline.Generate: %w", err)
	}

	liquidatable := make([]position, 0)
	for _, key := range snapshot {
		hf, ok := hfs[key.Borrower]
		if !ok || !domain.IsLiquidatable(hf) {
			continue
		}
		liquidatable = append(liquidatable, position{key: key, hf: hf})
	}
	sortByHealthFactor(liquidatable)

	candidates := make([]domain.Candidate, 0, len(liquidatable))
	for _, pos := range liquidatable {
		c, err := p.Evaluate(ctx, pos.key, pos.hf)
		if err != nil {
			reason := rejectionReason(err)
			metrics.Rejections.WithLabelValues(reason).Inc()
			slog.Debug("pipeline: position rejected",
				"position", pos.key,
				"health_factor", pos.hf.Dec(),
				"reason", reason,
				"err", err,
			)
			continue
		}
		candidates = append(candidates, c)
	}
	metrics.Candidates.Add(float64(len(candidates)))

	slog.Info("pipeline: evaluation complete",
		"tracked", len(snapshot),
		"liquidatable", len(liquidatable),
		"candidates", len(candidates),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return candidates, nil
}

// Evaluate builds the candidate for one liquidatable position.
func (p *Pipeline) Evaluate(ctx context.Context, key domain.WatchKey, hf *domain.Amount) (domain.Candidate, error) {
	if !domain.IsLiquidatable(hf) {
		return domain.Candidate{}, domain.ErrNotLiquidatable
	}

	debt, err := p.sizeDebt(ctx, key, hf)
	if err != nil {
		return domain.Candidate{}, err
	}

	coll, err := p.selectCollateral(ctx, key.Borrower, debt)
	if err != nil {
		return domain.Candidate{}, err
	}

	quoted, err := p.quote(ctx, coll.asset, key.Market, coll.seize)
	if err != nil {
		return domain.Candidate{}, err
	}
	minOut, err := domain.MinAmountOut(quoted, p.cfg.SlippageBps)
	if err != nil {
		return domain.Candidate{}, err
	}
	if !domain.IsProfitable(debt.toCover, minOut) {
		return domain.Candidate{}, fmt.Errorf("%w: min out %s, debt %s", errUnprofitable, minOut.Dec(), debt.toCover.Dec())
	}

	return domain.Candidate{
		Borrower:        key.Borrower,
		DebtAsset:       key.Market,
		CollateralAsset: coll.asset,
		DebtToCover:     debt.toCover,
		MinAmountOut:    minOut,
		HealthFactor:    hf,
		SeizeAmount:     coll.seize,
		BonusBps:        coll.bonusBps,
	}, nil
}

func (p *Pipeline) sizeDebt(ctx context.Context, key domain.WatchKey, hf *domain.Amount) (debtLeg, error) {
	token, ok := p.reserves.DebtToken(key.Market)
	if !ok {
		return debtLeg{}, fmt.Errorf("%w: %s", domain.ErrMissingDebtToken, key.Market.Hex())
	}
	balance, err := p.chain.Tokens.BalanceOf(ctx, token, key.Borrower)
	if err != nil {
		return debtLeg{}, fmt.Errorf("debt balance: %w", err)
	}
	toCover, err := domain.DebtToCover(balance, hf)
	if err != nil {
		return debtLeg{}, err
	}
	if toCover.IsZero() {
		return debtLeg{}, errNothingToCover
	}

	price, err := p.chain.Oracle.AssetPrice(ctx, key.Market)
	if err != nil {
		return debtLeg{}, fmt.Errorf("debt price: %w", err)
	}
	decimals, err := p.chain.Tokens.Decimals(ctx, key.Market)
	if err != nil {
		return debtLeg{}, fmt.Errorf("debt decimals: %w", err)
	}
	return debtLeg{toCover: toCover, price: price, decimals: decimals}, nil
}

// quote returns the router's output for swapping amount of from into to.
// Seizing the debt asset itself needs no swap.
func (p *Pipeline) quote(ctx context.Context, from, to common.Address, amount *domain.Amount) (*domain.Amount, error) {
	if from == to {
		return amount, nil
	}
	amounts, err := p.chain.Router.AmountsOut(ctx, amount, []common.Address{from, to})
	if err != nil {
		return nil, fmt.Errorf("swap quote: %w", err)
	}
	if len(amounts) == 0 {
		return nil, errEmptyQuote
	}
	return amounts[len(amounts)-1], nil
}

// sortByHealthFactor orders ascending by health factor. Ties fall back to
// borrower then market so a cycle's order is reproducible.
func sortByHealthFactor(ps []position) {
	sort.SliceStable(ps, func(i, j int) bool {
		if c := ps[i].hf.Cmp(ps[j].hf); c != 0 {
			return c < 0
		}
		if c := bytes.Compare(ps[i].key.Borrower.Bytes(), ps[j].key.Borrower.Bytes()); c != 0 {
			return c < 0
		}
		return bytes.Compare(ps[i].key.Market.Bytes(), ps[j].key.Market.Bytes()) < 0
	})
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, errUnprofitable):
		return "unprofitable"
	case errors.Is(err, errNothingToCover):
		return "nothing_to_cover"
	case errors.Is(err, domain.ErrNoCollateral):
		return "no_collateral"
	case errors.Is(err, domain.ErrMissingDebtToken):
		return "missing_debt_token"
	case errors.Is(err, domain.ErrOverflow), errors.Is(err, domain.ErrDivisionByZero):
		return "arithmetic"
	case errors.Is(err, domain.ErrSlippageTooHigh):
		return "slippage"
	case errors.Is(err, domain.ErrNotLiquidatable):
		return "healthy"
	default:
		return "chain_read"
	}
}
