package onchain

// events.go — live Borrow/Repay and new-head streams.
//
// Each stream runs a producer goroutine that decodes raw logs/headers into
// domain values and forwards them to the caller's channel. The returned
// subscription ends the producer on Unsubscribe and reports upstream errors.

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// SubscribePoolEvents streams decoded Borrow and Repay events of the pool.
// Logs that fail to decode are logged and skipped.
func (p *Pool) SubscribePoolEvents(ctx context.Context, sink chan<- domain.PoolEvent) (ports.Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{p.address},
		Topics:    [][]common.Hash{{borrowEventID, repayEventID}},
	}
	logs := make(chan types.Log, 128)
	upstream, err := p.c.backend.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("onchain.Pool.SubscribePoolEvents: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer upstream.Unsubscribe()
		for {
			select {
			case <-quit:
				return nil
			case err := <-upstream.Err():
				return err
			case lg := <-logs:
				if lg.Removed {
					slog.Debug("onchain: reorged log ignored", "tx", lg.TxHash.Hex())
					continue
				}
				evt, err := DecodePoolEvent(lg)
				if err != nil {
					slog.Warn("onchain: undecodable pool log", "tx", lg.TxHash.Hex(), "err", err)
					continue
				}
				select {
				case sink <- evt:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}

// DecodePoolEvent decodes a Borrow or Repay log.
// Borrow's debtor is onBehalfOf (topic 2); Repay's is user (topic 2).
func DecodePoolEvent(lg types.Log) (domain.PoolEvent, error) {
	if len(lg.Topics) < 3 {
		return domain.PoolEvent{}, fmt.Errorf("expected at least 3 topics, got %d", len(lg.Topics))
	}

	evt := domain.PoolEvent{
		Reserve: common.BytesToAddress(lg.Topics[1].Bytes()),
		User:    common.BytesToAddress(lg.Topics[2].Bytes()),
		Block:   lg.BlockNumber,
		TxHash:  lg.TxHash,
	}

	var name string
	switch lg.Topics[0] {
	case borrowEventID:
		evt.Kind, name = domain.PoolEventBorrow, "Borrow"
	case repayEventID:
		evt.Kind, name = domain.PoolEventRepay, "Repay"
	default:
		return domain.PoolEvent{}, fmt.Errorf("unknown event topic %s", lg.Topics[0].Hex())
	}

	values := make(map[string]any)
	if err := poolABI.UnpackIntoMap(values, name, lg.Data); err != nil {
		return domain.PoolEvent{}, fmt.Errorf("unpack %s: %w", name, err)
	}
	if raw, ok := values["amount"].(*big.Int); ok {
		amount, err := toAmount(raw)
		if err != nil {
			return domain.PoolEvent{}, fmt.Errorf("%s amount: %w", name, err)
		}
		evt.Amount = amount
	}
	return evt, nil
}

// Heads implements ports.BlockSource.
type Heads struct {
	backend Backend
}

// NewHeads returns a new-head source on backend.
func NewHeads(backend Backend) *Heads {
	return &Heads{backend: backend}
}

// SubscribeNewBlocks streams new heads as domain blocks.
func (h *Heads) SubscribeNewBlocks(ctx context.Context, sink chan<- domain.Block) (ports.Subscription, error) {
	headers := make(chan *types.Header, 16)
	upstream, err := h.backend.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("onchain.Heads.SubscribeNewBlocks: %w", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer upstream.Unsubscribe()
		for {
			select {
			case <-quit:
				return nil
			case err := <-upstream.Err():
				return err
			case hdr := <-headers:
				block := domain.Block{
					Number: hdr.Number.Uint64(),
					Hash:   hdr.Hash(),
					Time:   time.Unix(int64(hdr.Time), 0).UTC(),
				}
				select {
				case sink <- block:
				case <-quit:
					return nil
				}
			}
		}
	}), nil
}
