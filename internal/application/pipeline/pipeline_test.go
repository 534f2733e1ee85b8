package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alejandrodnm/liqbot/internal/application/pipeline"
	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/watchlist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type fakeChain struct {
	mu        sync.Mutex
	hf        map[common.Address]*domain.Amount
	hfErr     map[common.Address]error
	hfCalls   map[common.Address]int
	bonus     map[common.Address]uint64
	balances  map[common.Address]map[common.Address]*domain.Amount // token → holder → balance
	decimals  map[common.Address]uint8
	prices    map[common.Address]*domain.Amount
	reserves  map[common.Address][]domain.UserReserve
	swap      func(in *domain.Amount) *domain.Amount
	swapCalls int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		hf:       make(map[common.Address]*domain.Amount),
		hfErr:    make(map[common.Address]error),
		hfCalls:  make(map[common.Address]int),
		bonus:    make(map[common.Address]uint64),
		balances: make(map[common.Address]map[common.Address]*domain.Amount),
		decimals: make(map[common.Address]uint8),
		prices:   make(map[common.Address]*domain.Amount),
		reserves: make(map[common.Address][]domain.UserReserve),
	}
}

func (f *fakeChain) UserAccountData(_ context.Context, user common.Address) (domain.AccountData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hfCalls[user]++
	if err := f.hfErr[user]; err != nil {
		return domain.AccountData{}, err
	}
	return domain.AccountData{HealthFactor: f.hf[user]}, nil
}

func (f *fakeChain) ReserveConfiguration(_ context.Context, asset common.Address) (*domain.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(uint256.Int).Lsh(uint256.NewInt(f.bonus[asset]), 32), nil
}

func (f *fakeChain) VariableDebtToken(_ context.Context, _ common.Address) (common.Address, error) {
	return common.Address{}, errors.New("not used")
}

func (f *fakeChain) UserReserves(_ context.Context, user common.Address) ([]domain.UserReserve, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reserves[user], nil
}

func (f *fakeChain) BalanceOf(_ context.Context, token, holder common.Address) (*domain.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[token][holder]; ok {
		return b, nil
	}
	return uint256.NewInt(0), nil
}

func (f *fakeChain) Decimals(_ context.Context, token common.Address) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.decimals[token]
	if !ok {
		return 0, errors.New("decimals: unknown token")
	}
	return d, nil
}

func (f *fakeChain) AssetPrice(_ context.Context, asset common.Address) (*domain.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[asset]
	if !ok {
		return nil, errors.New("oracle: no price")
	}
	return p, nil
}

func (f *fakeChain) AmountsOut(_ context.Context, in *domain.Amount, path []common.Address) ([]*domain.Amount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.swapCalls++
	return []*domain.Amount{in, f.swap(in)}, nil
}

func (f *fakeChain) setDebt(token, holder common.Address, v *domain.Amount) {
	if f.balances[token] == nil {
		f.balances[token] = make(map[common.Address]*domain.Amount)
	}
	f.balances[token][holder] = v
}

// --- fixtures ---

var (
	usdc   = common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359")
	usdt   = common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F")
	dai    = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
	vUSDC  = common.HexToAddress("0xFCCf3cAbbe80101232d343252614b6A3eE81C989")
	vUSDT  = common.HexToAddress("0xfb00AC187a8Eb5AFAE4eACE434F493Eb62672df7")
	weth   = common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	wmatic = common.HexToAddress("0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270")

	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca201")
)

func amt(s string) *domain.Amount { return uint256.MustFromDecimal(s) }

func hf(s string) *domain.Amount { return amt(s) }

// wethToUSDC quotes WETH → USDC at 2000 USDC per WETH.
func wethToUSDC(in *domain.Amount) *domain.Amount {
	out := new(uint256.Int).Mul(in, uint256.NewInt(2000))
	return out.Div(out, uint256.NewInt(1_000_000_000_000))
}

func eligible(asset common.Address) domain.UserReserve {
	return domain.UserReserve{Asset: asset, CollateralEnabled: true, ScaledATokenBalance: amt("1000000000000000000")}
}

// baseChain: USDC debt (6 decimals, $1), WETH collateral (18 decimals, $2000, 5% bonus).
func baseChain() *fakeChain {
	f := newFakeChain()
	f.decimals[usdc] = 6
	f.decimals[usdt] = 6
	f.decimals[weth] = 18
	f.decimals[wmatic] = 18
	f.prices[usdc] = amt("1000000000000000000")
	f.prices[usdt] = amt("1000000000000000000")
	f.prices[weth] = amt("2000000000000000000000")
	f.bonus[weth] = 10500
	f.swap = wethToUSDC
	return f
}

func reserves(t *testing.T) domain.ReserveConfig {
	t.Helper()
	rc, err := domain.NewReserveConfig([]domain.Reserve{
		{Asset: usdc, VariableDebtToken: vUSDC},
		{Asset: usdt, VariableDebtToken: vUSDT},
		{Asset: dai},
	})
	require.NoError(t, err)
	return rc
}

func chainOf(f *fakeChain) pipeline.Chain {
	return pipeline.Chain{Pool: f, UserReserves: f, Tokens: f, Oracle: f, Router: f}
}

func newPipeline(t *testing.T, cfg pipeline.Config, f *fakeChain, keys ...domain.WatchKey) *pipeline.Pipeline {
	t.Helper()
	wl := watchlist.NewAave()
	for _, k := range keys {
		require.NoError(t, wl.Add(k))
	}
	p, err := pipeline.New(cfg, wl, reserves(t), chainOf(f))
	require.NoError(t, err)
	return p
}

func key(b, m common.Address) domain.WatchKey { return domain.WatchKey{Borrower: b, Market: m} }

// --- tests ---

func TestNew_RejectsExcessiveSlippage(t *testing.T) {
	_, err := pipeline.New(pipeline.Config{SlippageBps: 1001}, watchlist.NewAave(), reserves(t), chainOf(newFakeChain()))
	assert.ErrorIs(t, err, domain.ErrSlippageTooHigh)
}

func TestGenerate_EmptyWatchlist(t *testing.T) {
	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, baseChain())
	cands, err := p.Generate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestGenerate_OrdersByHealthFactorAndDropsHealthy(t *testing.T) {
	f := baseChain()
	f.hf[alice] = hf("980000000000000000") // 0.98: half close
	f.hf[bob] = hf("900000000000000000")   // 0.90: full close
	f.hf[carol] = hf("1200000000000000000")
	f.setDebt(vUSDC, alice, amt("2000000000"))
	f.setDebt(vUSDC, bob, amt("1000000000"))
	f.setDebt(vUSDC, carol, amt("5000000000"))
	for _, u := range []common.Address{alice, bob, carol} {
		f.reserves[u] = []domain.UserReserve{eligible(weth)}
	}

	p := newPipeline(t, pipeline.Config{SlippageBps: 30, HealthWorkers: 2}, f,
		key(alice, usdc), key(bob, usdc), key(carol, usdc))

	cands, err := p.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, bob, cands[0].Borrower, "lowest health factor first")
	assert.Equal(t, alice, cands[1].Borrower)

	for _, c := range cands {
		assert.Equal(t, usdc, c.DebtAsset)
		assert.Equal(t, weth, c.CollateralAsset)
		assert.Equal(t, "1000000000", c.DebtToCover.Dec())
		// 1000 USDC × 1.05 / 2000 = 0.525 WETH
		assert.Equal(t, "525000000000000000", c.SeizeAmount.Dec())
		// 1050 USDC quoted, minus 30 bps
		assert.Equal(t, "1046850000", c.MinAmountOut.Dec())
		assert.Equal(t, uint64(10500), c.BonusBps)
	}
}

func TestGenerate_TiesBreakByBorrowerThenMarket(t *testing.T) {
	f := baseChain()
	same := hf("900000000000000000")
	for _, u := range []common.Address{alice, bob} {
		f.hf[u] = same
		f.setDebt(vUSDC, u, amt("1000000000"))
		f.setDebt(vUSDT, u, amt("1000000000"))
		f.reserves[u] = []domain.UserReserve{eligible(weth)}
	}

	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, f,
		key(alice, usdt), key(bob, usdc), key(alice, usdc), key(bob, usdt))

	cands, err := p.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 4)

	got := make([]domain.WatchKey, 0, len(cands))
	for _, c := range cands {
		got = append(got, c.Key())
	}
	// bob (0x…0b0b) sorts before alice (0x…a11ce); usdc (0x3c…) before usdt (0xc2…)
	assert.Equal(t, []domain.WatchKey{
		key(bob, usdc), key(bob, usdt), key(alice, usdc), key(alice, usdt),
	}, got)
}

func TestGenerate_ReadsEachBorrowerHealthFactorOnce(t *testing.T) {
	f := baseChain()
	f.hf[alice] = hf("1500000000000000000")

	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, f, key(alice, usdc), key(alice, usdt))
	_, err := p.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.hfCalls[alice])
}

func TestGenerate_HealthFactorFailureSkipsOnlyThatBorrower(t *testing.T) {
	f := baseChain()
	f.hfErr[alice] = errors.New("rpc timeout")
	f.hf[bob] = hf("900000000000000000")
	f.setDebt(vUSDC, bob, amt("1000000000"))
	f.reserves[bob] = []domain.UserReserve{eligible(weth)}

	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, f, key(alice, usdc), key(bob, usdc))
	cands, err := p.Generate(context.Background())
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, bob, cands[0].Borrower)
}

func TestEvaluate_ProfitabilityGate(t *testing.T) {
	f := baseChain()
	f.setDebt(vUSDC, alice, amt("1000000000"))
	f.reserves[alice] = []domain.UserReserve{eligible(weth)}
	p := newPipeline(t, pipeline.Config{SlippageBps: 0}, f)
	h := hf("900000000000000000")

	f.swap = func(*domain.Amount) *domain.Amount { return amt("1000000000") }
	_, err := p.Evaluate(context.Background(), key(alice, usdc), h)
	assert.Error(t, err, "min out equal to debt to cover is not profitable")

	f.swap = func(*domain.Amount) *domain.Amount { return amt("1000000001") }
	c, err := p.Evaluate(context.Background(), key(alice, usdc), h)
	require.NoError(t, err)
	assert.Equal(t, "1000000001", c.MinAmountOut.Dec())
}

func TestEvaluate_PicksMostValuableCollateral(t *testing.T) {
	f := baseChain()
	f.setDebt(vUSDC, alice, amt("1000000000"))
	f.prices[wmatic] = amt("500000000000000000") // $0.50
	f.bonus[wmatic] = 11000
	f.swap = func(in *domain.Amount) *domain.Amount { return amt("1100000000") }
	f.reserves[alice] = []domain.UserReserve{
		eligible(weth),
		eligible(wmatic),
		{Asset: dai, CollateralEnabled: false, ScaledATokenBalance: amt("1")},
		{Asset: usdt, CollateralEnabled: true, ScaledATokenBalance: amt("0")},
	}
	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, f)

	c, err := p.Evaluate(context.Background(), key(alice, usdc), hf("900000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, wmatic, c.CollateralAsset, "10% bonus beats 5% bonus for the same debt")
	// 1000 USDC × 1.10 / 0.50 = 2200 WMATIC
	assert.Equal(t, "2200000000000000000000", c.SeizeAmount.Dec())
}

func TestEvaluate_UnpricedCollateralFailsCandidate(t *testing.T) {
	f := baseChain()
	f.setDebt(vUSDC, alice, amt("1000000000"))
	f.prices[wmatic] = amt("0")
	f.bonus[wmatic] = 11000
	f.reserves[alice] = []domain.UserReserve{eligible(wmatic), eligible(weth)}
	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, f)

	_, err := p.Evaluate(context.Background(), key(alice, usdc), hf("900000000000000000"))
	require.Error(t, err, "weth must not be chosen while wmatic cannot be priced")
	assert.ErrorIs(t, err, domain.ErrDivisionByZero)
	assert.Contains(t, err.Error(), wmatic.Hex())
	assert.Zero(t, f.swapCalls)
}

func TestEvaluate_Rejections(t *testing.T) {
	h := hf("900000000000000000")

	t.Run("no eligible collateral", func(t *testing.T) {
		f := baseChain()
		f.setDebt(vUSDC, alice, amt("1000000000"))
		f.reserves[alice] = []domain.UserReserve{{Asset: weth, CollateralEnabled: false, ScaledATokenBalance: amt("1")}}
		_, err := newPipeline(t, pipeline.Config{}, f).Evaluate(context.Background(), key(alice, usdc), h)
		assert.ErrorIs(t, err, domain.ErrNoCollateral)
	})

	t.Run("unknown debt token", func(t *testing.T) {
		_, err := newPipeline(t, pipeline.Config{}, baseChain()).Evaluate(context.Background(), key(alice, dai), h)
		assert.ErrorIs(t, err, domain.ErrMissingDebtToken)
	})

	t.Run("healthy position", func(t *testing.T) {
		_, err := newPipeline(t, pipeline.Config{}, baseChain()).
			Evaluate(context.Background(), key(alice, usdc), hf("1000000000000000000"))
		assert.ErrorIs(t, err, domain.ErrNotLiquidatable)
	})

	t.Run("zero debt", func(t *testing.T) {
		f := baseChain()
		f.reserves[alice] = []domain.UserReserve{eligible(weth)}
		_, err := newPipeline(t, pipeline.Config{}, f).Evaluate(context.Background(), key(alice, usdc), h)
		assert.Error(t, err)
		assert.Zero(t, f.swapCalls)
	})

	t.Run("zero collateral price", func(t *testing.T) {
		f := baseChain()
		f.setDebt(vUSDC, alice, amt("1000000000"))
		f.prices[weth] = amt("0")
		f.reserves[alice] = []domain.UserReserve{eligible(weth)}
		_, err := newPipeline(t, pipeline.Config{}, f).Evaluate(context.Background(), key(alice, usdc), h)
		assert.ErrorIs(t, err, domain.ErrDivisionByZero)
	})
}

func TestEvaluate_SameAssetCollateralNeedsNoSwap(t *testing.T) {
	f := baseChain()
	f.setDebt(vUSDC, alice, amt("1000000000"))
	f.bonus[usdc] = 10500
	f.reserves[alice] = []domain.UserReserve{eligible(usdc)}
	p := newPipeline(t, pipeline.Config{SlippageBps: 30}, f)

	c, err := p.Evaluate(context.Background(), key(alice, usdc), hf("900000000000000000"))
	require.NoError(t, err)
	assert.Equal(t, "1050000000", c.SeizeAmount.Dec())
	assert.Zero(t, f.swapCalls)
}
