// Package journal persists trade lifecycle history fed from the event
// bus. It is a collaborator, not part of the trading core: the core
// keeps trades in memory and publishes; the journal consumes.
package journal

import (
	"context"
	"errors"
	"time"
)

// Journal errors.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// TradeRow is the persisted form of a trade's lifecycle.
type TradeRow struct {
	TradeID        string
	SignalID       string
	CallerID       string
	WalletAddress  string
	NetworkKey     string
	Side           string
	Symbol         string
	State          string
	EntryTxHash    string
	EntryFilledRaw string
	FailureCode    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExitRow is one persisted exit event.
type ExitRow struct {
	TradeID              string
	Kind                 string
	Price                string
	AmountRaw            string
	PercentageOfPosition int
	TxHash               string
	PnLBase              string
	At                   time.Time
}

// PriceTick is one monitor price sample, kept for analytics.
type PriceTick struct {
	Symbol      string
	Price       float64
	TimestampMs int64
}

// TradeStore persists trade rows.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id
	// exists.
	Insert(ctx context.Context, t *TradeRow) error

	// UpdateState advances a trade's persisted state.
	UpdateState(ctx context.Context, tradeID, state, failureCode string, at time.Time) error

	// GetByID retrieves a trade. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*TradeRow, error)

	// GetAll retrieves all trades ordered by creation time.
	GetAll(ctx context.Context) ([]*TradeRow, error)
}

// ExitStore persists exit events.
type ExitStore interface {
	// Insert adds one exit event.
	Insert(ctx context.Context, e *ExitRow) error

	// GetByTradeID retrieves a trade's exits ordered by time.
	GetByTradeID(ctx context.Context, tradeID string) ([]*ExitRow, error)
}

// TickStore persists monitor price samples.
type TickStore interface {
	// InsertBulk appends a batch of ticks.
	InsertBulk(ctx context.Context, ticks []*PriceTick) error
}
