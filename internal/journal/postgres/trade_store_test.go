package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"multisig-trader/internal/journal"
)

func sampleTrade(id string) *journal.TradeRow {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &journal.TradeRow{
		TradeID:        id,
		SignalID:       "sig-" + id,
		CallerID:       "caller-1",
		WalletAddress:  "0xAAAA000000000000000000000000000000000001",
		NetworkKey:     "arbitrum",
		Side:           "buy",
		Symbol:         "FOO",
		State:          "entered",
		EntryTxHash:    "0x0100000000000000000000000000000000000000000000000000000000000000",
		EntryFilledRaw: "190000000000000000000",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestTradeStore_InsertGetUpdate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()

	trade := sampleTrade("t1")
	require.NoError(t, store.Insert(ctx, trade))

	// Duplicate insert rejected
	err := store.Insert(ctx, trade)
	require.ErrorIs(t, err, journal.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, trade.SignalID, got.SignalID)
	require.Equal(t, trade.EntryFilledRaw, got.EntryFilledRaw)

	// State progression persists
	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.UpdateState(ctx, "t1", "exited", "", at))
	got, err = store.GetByID(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "exited", got.State)

	// Unknown ids
	_, err = store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, journal.ErrNotFound)
	require.ErrorIs(t, store.UpdateState(ctx, "missing", "failed", "X", at), journal.ErrNotFound)
}

func TestTradeStore_GetAllOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)
	ctx := context.Background()

	older := sampleTrade("t-old")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := sampleTrade("t-new")

	require.NoError(t, store.Insert(ctx, newer))
	require.NoError(t, store.Insert(ctx, older))

	rows, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "t-old", rows[0].TradeID)
	require.Equal(t, "t-new", rows[1].TradeID)
}

func TestExitStore_InsertAndFetch(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	trades := NewTradeStore(pool)
	exits := NewExitStore(pool)
	ctx := context.Background()

	require.NoError(t, trades.Insert(ctx, sampleTrade("t1")))

	base := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, exits.Insert(ctx, &journal.ExitRow{
		TradeID: "t1", Kind: "TRAILING_STOP", Price: "1.107",
		AmountRaw: "100000000000000000000", PercentageOfPosition: 50,
		TxHash: "0x03", PnLBase: "10.7", At: base.Add(time.Minute),
	}))
	require.NoError(t, exits.Insert(ctx, &journal.ExitRow{
		TradeID: "t1", Kind: "TP1", Price: "1.06",
		AmountRaw: "100000000000000000000", PercentageOfPosition: 50,
		TxHash: "0x02", PnLBase: "6", At: base,
	}))

	rows, err := exits.GetByTradeID(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "TP1", rows[0].Kind, "exits must come back in time order")
	require.Equal(t, 50, rows[0].PercentageOfPosition)
}
