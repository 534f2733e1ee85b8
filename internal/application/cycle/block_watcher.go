package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/ports"
)

// Sender accepts commands for the dispatcher.
type Sender interface {
	Send(cmd domain.Command) error
}

// BlockWatcher turns every new head into a RunCycle command.
type BlockWatcher struct {
	blocks           ports.BlockSource
	out              Sender
	resubscribeDelay time.Duration
}

// NewBlockWatcher wires a watcher. resubscribeDelay <= 0 defaults to 5s.
func NewBlockWatcher(blocks ports.BlockSource, out Sender, resubscribeDelay time.Duration) *BlockWatcher {
	if resubscribeDelay <= 0 {
		resubscribeDelay = 5 * time.Second
	}
	return &BlockWatcher{blocks: blocks, out: out, resubscribeDelay: resubscribeDelay}
}

// Run blocks until ctx is cancelled. Only the initial subscription error is returned.
func (w *BlockWatcher) Run(ctx context.Context) error {
	heads := make(chan domain.Block, 16)
	sub, err := w.blocks.SubscribeNewBlocks(ctx, heads)
	if err != nil {
		return fmt.Errorf("cycle.BlockWatcher.Run: subscribe: %w", err)
	}
	defer func() { sub.Unsubscribe() }()

	slog.Info("block watcher: subscribed to new heads")

	for {
		select {
		case <-ctx.Done():
			slog.Info("block watcher: stopped")
			return nil

		case head := <-heads:
			slog.Debug("block watcher: new head", "block", head.Number, "hash", head.Hash.Hex())
			if err := w.out.Send(domain.CommandRunCycle); err != nil {
				slog.Error("block watcher: failed to enqueue cycle", "block", head.Number, "err", err)
			}

		case err := <-sub.Err():
			slog.Error("block watcher: head subscription lost", "err", err)
			sub.Unsubscribe()
			next, err := w.resubscribe(ctx, heads)
			if err != nil {
				return nil
			}
			sub = next
		}
	}
}

func (w *BlockWatcher) resubscribe(ctx context.Context, sink chan domain.Block) (ports.Subscription, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.resubscribeDelay):
		}

		sub, err := w.blocks.SubscribeNewBlocks(ctx, sink)
		if err != nil {
			slog.Warn("block watcher: resubscribe failed", "err", err, "retry_in", w.resubscribeDelay)
			continue
		}
		slog.Info("block watcher: head subscription restored")
		return sub, nil
	}
}
