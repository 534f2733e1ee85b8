package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/liqbot/config"
	"github.com/alejandrodnm/liqbot/internal/adapters/notify"
	"github.com/alejandrodnm/liqbot/internal/adapters/onchain"
	"github.com/alejandrodnm/liqbot/internal/adapters/storage"
	"github.com/alejandrodnm/liqbot/internal/adapters/subgraph"
	"github.com/alejandrodnm/liqbot/internal/application/executor"
	"github.com/alejandrodnm/liqbot/internal/application/liquidator"
	"github.com/alejandrodnm/liqbot/internal/application/pipeline"
	"github.com/alejandrodnm/liqbot/internal/application/reconciler"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/alejandrodnm/liqbot/internal/watchlist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// app holds everything main starts and stops.
type app struct {
	rpc        *ethclient.Client
	journal    *storage.SQLiteJournal // nil when storage.dsn is empty
	aave       *watchlist.Aave
	morpho     *watchlist.Morpho
	reconciler *reconciler.Reconciler
	heads      *onchain.Heads
	liquidator liquidator.Liquidator
}

// build dials the node and wires every adapter. evaluateOnly skips the
// signer and executor even when the config enables execution.
func build(ctx context.Context, cfg *config.Config, table, evaluateOnly bool) (*app, error) {
	rpc, err := onchain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, err
	}
	a := &app{rpc: rpc}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	client := onchain.NewClient(rpc, cfg.Chain.RPS, cfg.Chain.Burst)
	pool := onchain.NewPool(client, common.HexToAddress(cfg.Aave.Pool))
	tokens := onchain.NewTokens(client)

	reserves, err := onchain.ResolveReserves(ctx, pool, cfg.Reserves())
	if err != nil {
		return nil, err
	}
	slog.Info("liqbot: reserves resolved", "markets", reserves.Len())

	if cfg.Storage.DSN != "" {
		a.journal, err = storage.NewSQLiteJournal(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
	}
	var journal ports.Journal
	if a.journal != nil {
		journal = a.journal
	}

	a.aave = watchlist.NewAave()
	a.morpho = watchlist.NewMorpho()

	indexer := subgraph.NewClient(subgraph.Config{
		URL:      cfg.Indexer.URL,
		APIKey:   cfg.Indexer.APIKey,
		Assets:   reserves.Markets(),
		PageSize: cfg.Indexer.PageSize,
		MaxPages: cfg.Indexer.MaxPages,
		Timeout:  cfg.IndexerTimeout(),
	})

	recCfg := reconciler.DefaultConfig()
	recCfg.PruneInterval = cfg.PruneInterval()
	recCfg.ResubscribeDelay = cfg.ResubscribeDelay()
	recCfg.EventBuffer = cfg.Reconciler.EventBuffer
	a.reconciler = reconciler.New(recCfg, a.aave, reserves, indexer, pool, tokens)

	pipe, err := pipeline.New(
		pipeline.Config{SlippageBps: cfg.Slippage(), HealthWorkers: cfg.Pipeline.HealthWorkers},
		a.aave,
		reserves,
		pipeline.Chain{
			Pool: pool,
			UserReserves: onchain.NewDataProvider(client,
				common.HexToAddress(cfg.Aave.DataProvider),
				common.HexToAddress(cfg.Aave.AddressesProvider)),
			Tokens: tokens,
			Oracle: onchain.NewOracle(client, common.HexToAddress(cfg.Aave.Oracle)),
			Router: onchain.NewRouter(client, common.HexToAddress(cfg.Pipeline.Router)),
		},
	)
	if err != nil {
		return nil, err
	}

	var exec liquidator.Executor
	if !evaluateOnly && !cfg.Liquidation.DryRun {
		fl, err := onchain.NewFlashLiquidator(rpc, onchain.FlashLiquidatorConfig{
			Contract:       common.HexToAddress(cfg.Liquidation.Contract),
			ChainID:        cfg.Chain.ChainID,
			PrivateKeyHex:  cfg.Liquidation.PrivateKey,
			ReceiptTimeout: cfg.ReceiptTimeout(),
		})
		if err != nil {
			return nil, err
		}
		engine, err := executor.New(executor.Config{
			ConcurrencyLimit: cfg.Liquidation.ConcurrencyLimit,
			MaxAttempts:      cfg.Liquidation.MaxAttempts,
			RetryDelay:       cfg.RetryDelay(),
		}, fl, journal)
		if err != nil {
			return nil, err
		}
		exec = engine
		slog.Info("liqbot: execution enabled",
			"signer", fl.Address().Hex(),
			"contract", cfg.Liquidation.Contract,
		)
	} else {
		slog.Warn("liqbot: evaluate-only, no transactions will be sent")
	}

	a.liquidator = liquidator.NewAave(a.aave, pipe, exec, notify.NewConsole(table), journal)
	a.heads = onchain.NewHeads(rpc)

	ok = true
	return a, nil
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			slog.Warn("liqbot: journal close failed", "err", err)
		}
	}
	if a.rpc != nil {
		a.rpc.Close()
	}
}

func openJournal(cfg *config.Config) (*storage.SQLiteJournal, error) {
	if cfg.Storage.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is empty, no journal to read")
	}
	return storage.NewSQLiteJournal(cfg.Storage.DSN)
}
