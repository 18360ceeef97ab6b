package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Action is what an ExecutionRequest asks the executor to do.
type Action string

const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
)

// Priority orders requests in the scheduler queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

// String renders the priority for logs.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// ExecutionRequest is the scheduler's work unit.
type ExecutionRequest struct {
	TradeID   string
	Action    Action
	AmountRaw *big.Int
	Reason    string
	Priority  Priority

	// ExitKind is set for exit requests so the executor can record the
	// resulting ExitEvent with the kind the monitor emitted.
	ExitKind ExitKind
	// ExitPrice is the price observed at emission time.
	ExitPrice decimal.Decimal
	// Attempt counts re-queues of a failed exit for backoff.
	Attempt int
}
