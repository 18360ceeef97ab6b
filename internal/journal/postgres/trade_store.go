package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"multisig-trader/internal/journal"
)

// TradeStore implements journal.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ journal.TradeStore = (*TradeStore)(nil)

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *journal.TradeRow) error {
	query := `
		INSERT INTO trades (
			trade_id, signal_id, caller_id, wallet_address, network_key,
			side, symbol, state, entry_tx_hash, entry_filled_raw,
			failure_code, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.TradeID, t.SignalID, t.CallerID, t.WalletAddress, t.NetworkKey,
		t.Side, t.Symbol, t.State, t.EntryTxHash, t.EntryFilledRaw,
		t.FailureCode, t.CreatedAt, t.UpdatedAt,
	)
	if err := translateError(err); err != nil {
		if err == journal.ErrDuplicateKey {
			return err
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// UpdateState advances a trade's persisted state.
func (s *TradeStore) UpdateState(ctx context.Context, tradeID, state, failureCode string, at time.Time) error {
	query := `
		UPDATE trades
		SET state = $2,
		    failure_code = CASE WHEN $3 = '' THEN failure_code ELSE $3 END,
		    updated_at = $4
		WHERE trade_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, tradeID, state, failureCode, at)
	if err != nil {
		return fmt.Errorf("update trade state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return journal.ErrNotFound
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*journal.TradeRow, error) {
	query := `
		SELECT
			trade_id, signal_id, caller_id, wallet_address, network_key,
			side, symbol, state, entry_tx_hash, entry_filled_raw,
			failure_code, created_at, updated_at
		FROM trades
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTradeRow(row)
	if err := translateError(err); err != nil {
		if err == journal.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetAll retrieves all trades ordered by creation time.
func (s *TradeStore) GetAll(ctx context.Context) ([]*journal.TradeRow, error) {
	query := `
		SELECT
			trade_id, signal_id, caller_id, wallet_address, network_key,
			side, symbol, state, entry_tx_hash, entry_filled_raw,
			failure_code, created_at, updated_at
		FROM trades
		ORDER BY created_at ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all trades: %w", err)
	}
	defer rows.Close()

	var trades []*journal.TradeRow
	for rows.Next() {
		t, err := scanTradeRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return trades, nil
}

// scanTradeRow scans a single row into a TradeRow.
func scanTradeRow(row pgx.Row) (*journal.TradeRow, error) {
	var t journal.TradeRow

	err := row.Scan(
		&t.TradeID, &t.SignalID, &t.CallerID, &t.WalletAddress, &t.NetworkKey,
		&t.Side, &t.Symbol, &t.State, &t.EntryTxHash, &t.EntryFilledRaw,
		&t.FailureCode, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
