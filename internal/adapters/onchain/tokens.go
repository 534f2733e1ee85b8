package onchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Tokens reads ERC-20 state. It implements ports.TokenReader.
// Decimals never change, so they are cached after the first read.
type Tokens struct {
	c *Client

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewTokens returns an ERC-20 reader.
func NewTokens(c *Client) *Tokens {
	return &Tokens{c: c, decimals: make(map[common.Address]uint8)}
}

// BalanceOf calls balanceOf on token.
func (t *Tokens) BalanceOf(ctx context.Context, token, holder common.Address) (*domain.Amount, error) {
	out, err := t.c.call(ctx, erc20ABI, token, "balanceOf", holder)
	if err != nil {
		return nil, fmt.Errorf("onchain.Tokens.BalanceOf: %w", err)
	}
	bal, err := toAmount(out[0])
	if err != nil {
		return nil, fmt.Errorf("onchain.Tokens.BalanceOf: %w", err)
	}
	return bal, nil
}

// Decimals calls decimals on token, once.
func (t *Tokens) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	t.mu.RLock()
	d, ok := t.decimals[token]
	t.mu.RUnlock()
	if ok {
		return d, nil
	}

	out, err := t.c.call(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return 0, fmt.Errorf("onchain.Tokens.Decimals: %w", err)
	}
	d, ok = out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("onchain.Tokens.Decimals: unexpected type %T", out[0])
	}

	t.mu.Lock()
	t.decimals[token] = d
	t.mu.Unlock()
	return d, nil
}
