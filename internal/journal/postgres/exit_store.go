package postgres

import (
	"context"
	"fmt"

	"multisig-trader/internal/journal"
)

// ExitStore implements journal.ExitStore using PostgreSQL.
type ExitStore struct {
	pool *Pool
}

// NewExitStore creates a new ExitStore.
func NewExitStore(pool *Pool) *ExitStore {
	return &ExitStore{pool: pool}
}

// Compile-time interface check.
var _ journal.ExitStore = (*ExitStore)(nil)

// Insert adds one exit event.
func (s *ExitStore) Insert(ctx context.Context, e *journal.ExitRow) error {
	query := `
		INSERT INTO trade_exits (
			trade_id, kind, price, amount_raw, percentage_of_position,
			tx_hash, pnl_base, at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8
		)
	`

	_, err := s.pool.Exec(ctx, query,
		e.TradeID, e.Kind, e.Price, e.AmountRaw, e.PercentageOfPosition,
		e.TxHash, e.PnLBase, e.At,
	)
	if err := translateError(err); err != nil {
		if err == journal.ErrDuplicateKey {
			return err
		}
		return fmt.Errorf("insert trade exit: %w", err)
	}
	return nil
}

// GetByTradeID retrieves a trade's exits ordered by time.
func (s *ExitStore) GetByTradeID(ctx context.Context, tradeID string) ([]*journal.ExitRow, error) {
	query := `
		SELECT
			trade_id, kind, price, amount_raw, percentage_of_position,
			tx_hash, pnl_base, at
		FROM trade_exits
		WHERE trade_id = $1
		ORDER BY at ASC
	`

	rows, err := s.pool.Query(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("get exits by trade id: %w", err)
	}
	defer rows.Close()

	var exits []*journal.ExitRow
	for rows.Next() {
		var e journal.ExitRow
		err := rows.Scan(
			&e.TradeID, &e.Kind, &e.Price, &e.AmountRaw, &e.PercentageOfPosition,
			&e.TxHash, &e.PnLBase, &e.At,
		)
		if err != nil {
			return nil, fmt.Errorf("scan exit row: %w", err)
		}
		exits = append(exits, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exit rows: %w", err)
	}
	return exits, nil
}
