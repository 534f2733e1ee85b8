package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Candidate is a fully specified, profit-checked liquidation for one cycle.
// It is never mutated after the pipeline creates it, so copies may be handed
// to concurrent execution tasks freely.
type Candidate struct {
	Borrower        common.Address
	DebtAsset       common.Address
	CollateralAsset common.Address
	DebtToCover     *Amount
	MinAmountOut    *Amount

	HealthFactor *Amount
	SeizeAmount  *Amount
	BonusBps     uint64
}

// Key returns the watchlist position this candidate liquidates.
func (c Candidate) Key() WatchKey {
	return WatchKey{Borrower: c.Borrower, Market: c.DebtAsset}
}

// Command is sent from the block watcher to the dispatcher.
type Command int

const (
	CommandRunCycle Command = iota
	CommandShutdown
)

func (c Command) String() string {
	switch c {
	case CommandRunCycle:
		return "run_cycle"
	case CommandShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Block is a new-head notification.
type Block struct {
	Number uint64
	Hash   common.Hash
	Time   time.Time
}

// PoolEventKind distinguishes the pool events the reconciler consumes.
type PoolEventKind int

const (
	PoolEventBorrow PoolEventKind = iota + 1
	PoolEventRepay
)

func (k PoolEventKind) String() string {
	switch k {
	case PoolEventBorrow:
		return "borrow"
	case PoolEventRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// PoolEvent is a decoded Borrow or Repay log.
// For Borrow, User is onBehalfOf (the account that carries the debt).
// For Repay, User is the account whose debt was repaid.
type PoolEvent struct {
	Kind    PoolEventKind
	Reserve common.Address
	User    common.Address
	Amount  *Amount
	Block   uint64
	TxHash  common.Hash
}

// Key returns the watchlist position the event refers to.
func (e PoolEvent) Key() WatchKey {
	return WatchKey{Borrower: e.User, Market: e.Reserve}
}

// TxReceipt is the outcome of a mined liquidation transaction.
type TxReceipt struct {
	TxHash  common.Hash
	Block   uint64
	GasUsed uint64
}

// Attempt records one execution attempt for the journal.
type Attempt struct {
	ID        string
	CycleID   string
	Candidate Candidate
	Number    int
	Success   bool
	TxHash    common.Hash
	Err       string
	At        time.Time
}

// ExecutionReport aggregates a cycle's execution results.
type ExecutionReport struct {
	Succeeded int
	Failed    int
}

// CycleSummary is persisted once per evaluate-and-execute cycle.
type CycleSummary struct {
	ID         string
	StartedAt  time.Time
	Duration   time.Duration
	Watchlist  int
	Candidates int
	Succeeded  int
	Failed     int
	Err        string
}
