package onchain

// liquidator.go — flash liquidation transactions.
//
// The flash liquidator contract borrows the debt asset, calls the pool's
// liquidationCall, swaps the seized collateral back and repays the flash
// loan; it reverts unless the swap returns at least minimumAmountOut. This
// file handles:
//   - nonce and gas price (cached, +10%)
//   - gas estimation (+20%); a failed estimate aborts the attempt
//   - EIP-155 signing, submission and receipt polling

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	gasPriceUpdateInterval = 30 * time.Second
	defaultReceiptTimeout  = 60 * time.Second
	defaultPollInterval    = 3 * time.Second
)

// ErrReverted reports a mined transaction with a failed status.
var ErrReverted = errors.New("transaction reverted on-chain")

// FlashLiquidatorConfig configures transaction submission.
type FlashLiquidatorConfig struct {
	Contract       common.Address
	ChainID        int64
	PrivateKeyHex  string
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// FlashLiquidator implements ports.LiquidationExecutor.
type FlashLiquidator struct {
	backend Backend
	cfg     FlashLiquidatorConfig
	key     *ecdsa.PrivateKey
	from    common.Address
	signer  types.Signer

	// one transaction at a time per account keeps nonces sequential
	sendMu sync.Mutex

	mu           sync.RWMutex
	cachedGasWei *big.Int
	gasUpdatedAt time.Time
}

// NewFlashLiquidator parses the signing key and binds the liquidator contract.
func NewFlashLiquidator(backend Backend, cfg FlashLiquidatorConfig) (*FlashLiquidator, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewFlashLiquidator: invalid private key: %w", err)
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &FlashLiquidator{
		backend: backend,
		cfg:     cfg,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.NewEIP155Signer(big.NewInt(cfg.ChainID)),
	}, nil
}

// Address returns the account that signs liquidations.
func (fl *FlashLiquidator) Address() common.Address { return fl.from }

// ExecuteLiquidation submits executeFlashLiquidation for c and waits for it
// to be mined. A revert or an unconfirmed transaction is an error.
func (fl *FlashLiquidator) ExecuteLiquidation(ctx context.Context, c domain.Candidate) (domain.TxReceipt, error) {
	callData, err := flashLiquidatorABI.Pack("executeFlashLiquidation",
		c.CollateralAsset,
		c.DebtAsset,
		c.Borrower,
		c.DebtToCover.ToBig(),
		c.MinAmountOut.ToBig(),
	)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("liquidate: pack: %w", err)
	}

	signed, err := fl.send(ctx, callData)
	if err != nil {
		return domain.TxReceipt{}, err
	}
	txHash := signed.Hash()
	slog.Info("liquidate: transaction sent",
		"borrower", c.Borrower.Hex(),
		"debt_asset", c.DebtAsset.Hex(),
		"collateral_asset", c.CollateralAsset.Hex(),
		"tx", txHash.Hex(),
	)

	receiptCtx, cancel := context.WithTimeout(ctx, fl.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := fl.waitForReceipt(receiptCtx, txHash)
	if err != nil {
		return domain.TxReceipt{TxHash: txHash}, fmt.Errorf("liquidate: receipt for %s: %w", txHash.Hex(), err)
	}

	out := domain.TxReceipt{TxHash: txHash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.Block = receipt.BlockNumber.Uint64()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return out, fmt.Errorf("liquidate: %s: %w", txHash.Hex(), ErrReverted)
	}
	return out, nil
}

// send builds, signs and submits a call to the liquidator contract.
func (fl *FlashLiquidator) send(ctx context.Context, callData []byte) (*types.Transaction, error) {
	fl.sendMu.Lock()
	defer fl.sendMu.Unlock()

	nonce, err := fl.backend.PendingNonceAt(ctx, fl.from)
	if err != nil {
		return nil, fmt.Errorf("liquidate: nonce: %w", err)
	}

	gasPrice := fl.gasPrice(ctx)
	contract := fl.cfg.Contract

	gasLimit, err := fl.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     fl.from,
		To:       &contract,
		GasPrice: gasPrice,
		Data:     callData,
	})
	if err != nil {
		// usually the contract would revert; nothing is sent
		return nil, fmt.Errorf("liquidate: estimate gas: %w", err)
	}
	gasLimit = gasLimit * 12 / 10

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), gasLimit, gasPrice, callData)
	signed, err := types.SignTx(tx, fl.signer, fl.key)
	if err != nil {
		return nil, fmt.Errorf("liquidate: sign tx: %w", err)
	}
	if err := fl.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("liquidate: send tx: %w", err)
	}
	return signed, nil
}

// gasPrice returns the suggested gas price plus 10%, cached briefly.
func (fl *FlashLiquidator) gasPrice(ctx context.Context) *big.Int {
	fl.mu.RLock()
	cached := fl.cachedGasWei
	updatedAt := fl.gasUpdatedAt
	fl.mu.RUnlock()

	if cached != nil && time.Since(updatedAt) < gasPriceUpdateInterval {
		return cached
	}

	price, err := fl.backend.SuggestGasPrice(ctx)
	if err != nil {
		if cached != nil {
			return cached
		}
		return big.NewInt(50_000_000_000) // 50 gwei
	}

	buffered := new(big.Int).Mul(price, big.NewInt(11))
	buffered.Div(buffered, big.NewInt(10))

	fl.mu.Lock()
	fl.cachedGasWei = buffered
	fl.gasUpdatedAt = time.Now()
	fl.mu.Unlock()

	return buffered
}

// waitForReceipt polls until the transaction is mined or ctx expires.
func (fl *FlashLiquidator) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(fl.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			receipt, err := fl.backend.TransactionReceipt(ctx, txHash)
			if err != nil {
				continue // not yet mined
			}
			return receipt, nil
		}
	}
}
