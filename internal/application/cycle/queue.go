package cycle

// queue.go — unbounded FIFO between the block watcher and the dispatcher.
//
// A new head must never be dropped or block the watcher while a cycle is in
// flight, so Send only fails once the queue is closed.

import (
	"context"
	"errors"
	"sync"

	"github.com/alejandrodnm/liqbot/internal/domain"
)

// ErrQueueClosed is returned by Send and Receive after Close.
var ErrQueueClosed = errors.New("cycle: command queue closed")

// Queue is an unbounded multi-producer, single-consumer command queue.
type Queue struct {
	mu     sync.Mutex
	items  []domain.Command
	closed bool
	notify chan struct{}
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Send appends cmd. It never blocks.
func (q *Queue) Send(cmd domain.Command) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	q.wake()
	return nil
}

// Receive blocks until a command is available, the queue is closed and
// drained, or ctx is done.
func (q *Queue) Receive(ctx context.Context) (domain.Command, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items[0] = 0
			q.items = q.items[1:]
			q.mu.Unlock()
			return cmd, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return 0, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close rejects further sends. Commands already queued can still be received.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len returns the number of pending commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
