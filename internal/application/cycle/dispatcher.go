package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/liqbot/internal/domain"
	"github.com/alejandrodnm/liqbot/internal/metrics"
)

// Receiver yields commands for the dispatcher.
type Receiver interface {
	Receive(ctx context.Context) (domain.Command, error)
}

// CycleRunner runs one evaluate-and-execute cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Dispatcher is the single consumer of the command queue. Cycles never overlap:
// the next command is received only after the current cycle returns.
type Dispatcher struct {
	in     Receiver
	runner CycleRunner
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(in Receiver, runner CycleRunner) *Dispatcher {
	return &Dispatcher{in: in, runner: runner}
}

// Run processes commands until Shutdown, ctx cancellation or queue close.
// A closed queue returns ErrQueueClosed.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("dispatcher: started")

	for {
		cmd, err := d.in.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				slog.Warn("dispatcher: stopped because queue closed")
				return err
			}
			if ctx.Err() != nil {
				slog.Info("dispatcher: stopped")
				return nil
			}
			return fmt.Errorf("cycle.Dispatcher.Run: receive: %w", err)
		}

		switch cmd {
		case domain.CommandShutdown:
			slog.Info("dispatcher: shutdown requested")
			return nil
		case domain.CommandRunCycle:
			if ctx.Err() != nil {
				// backlog left after cancellation is dropped
				slog.Info("dispatcher: stopped", "pending", "dropped")
				return nil
			}
			d.runCycle(ctx)
		default:
			slog.Warn("dispatcher: unknown command", "cmd", cmd)
		}
	}
}

func (d *Dispatcher) runCycle(ctx context.Context) {
	start := time.Now()

	// an in-flight cycle finishes even if the caller is cancelled
	err := d.runner.RunCycle(context.WithoutCancel(ctx))

	elapsed := time.Since(start)
	metrics.CycleDuration.Observe(elapsed.Seconds())
	if err != nil {
		metrics.Cycles.WithLabelValues("failed").Inc()
		slog.Error("dispatcher: cycle failed", "err", err, "duration", elapsed.Round(time.Millisecond))
		return
	}
	metrics.Cycles.WithLabelValues("ok").Inc()
}
