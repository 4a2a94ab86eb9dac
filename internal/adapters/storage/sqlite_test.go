package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/futarchy/internal/adapters/storage"
	"github.com/alejandrodnm/futarchy/internal/domain"
)

func makeTrade(id, pool string, ts time.Time) domain.ClassifiedTrade {
	return domain.ClassifiedTrade{
		ID:            id + "@" + pool,
		TokenIn:       domain.TradeLeg{Address: "0xc1", Symbol: "YES_GNO", Amount: decimal.RequireFromString("1000.000000")},
		TokenOut:      domain.TradeLeg{Address: "0xd1", Symbol: "YES_sDAI", Amount: decimal.RequireFromString("113.800000")},
		OutcomeSide:   domain.OutcomeYes,
		OperationSide: domain.OperationBuy,
		Price:         decimal.RequireFromString("0.1138"),
		Timestamp:     ts,
		PoolAddress:   pool,
		BlockNumber:   42,
		UserAddress:   "0xuser",
		TxHash:        id,
	}
}

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStorage_SaveAndGetTrades(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	n, err := db.SaveTrades(ctx, []domain.ClassifiedTrade{
		makeTrade("0xbbb", "0xpool", now),
		makeTrade("0xaaa", "0xpool", now.Add(-time.Minute)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	trades, err := db.GetTrades(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Más antiguos primero
	assert.Equal(t, "0xaaa@0xpool", trades[0].ID)
	assert.Equal(t, "0xbbb@0xpool", trades[1].ID)

	got := trades[1]
	assert.True(t, got.Price.Equal(decimal.RequireFromString("0.1138")))
	assert.True(t, got.TokenIn.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "YES_GNO", got.TokenIn.Symbol)
	assert.Equal(t, domain.OutcomeYes, got.OutcomeSide)
	assert.Equal(t, domain.OperationBuy, got.OperationSide)
	assert.Equal(t, uint64(42), got.BlockNumber)
	assert.Equal(t, now, got.Timestamp)
}

func TestSQLiteStorage_SaveTrades_Dedup(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := []domain.ClassifiedTrade{makeTrade("0x001", "0xpool", now)}
	n, err := db.SaveTrades(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Re-sync del mismo rango: solo cuenta el nuevo
	n, err = db.SaveTrades(ctx, append(first, makeTrade("0x002", "0xpool", now)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trades, err := db.GetTrades(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

func TestSQLiteStorage_SaveEmptySlice(t *testing.T) {
	db := newDB(t)
	n, err := db.SaveTrades(context.Background(), nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStorage_LastTradeTime(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	last, err := db.LastTradeTime(ctx, "0xpool")
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	now := time.Now().UTC().Truncate(time.Second)
	_, err = db.SaveTrades(ctx, []domain.ClassifiedTrade{
		makeTrade("0x001", "0xPOOL", now.Add(-time.Hour)),
		makeTrade("0x002", "0xpool", now),
		makeTrade("0x003", "0xother", now.Add(time.Hour)),
	})
	require.NoError(t, err)

	last, err = db.LastTradeTime(ctx, "0xPool")
	require.NoError(t, err)
	assert.Equal(t, now, last)
}

func TestSQLiteStorage_Executions(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)

	rec := domain.ExecutionRecord{
		ID:         "exec-1",
		TokenIn:    "0xc1",
		TokenOut:   "0xd1",
		Amount:     decimal.RequireFromString("1.5"),
		Strategy:   "algebra",
		AutoSplit:  true,
		Status:     domain.ExecutionRunning,
		FailedStep: -1,
		StartedAt:  started,
	}
	require.NoError(t, db.SaveExecution(ctx, rec))

	finished := started.Add(time.Second)
	rec.Status = domain.ExecutionCompleted
	rec.TxHash = "0xfeed"
	rec.FinishedAt = &finished
	require.NoError(t, db.SaveExecution(ctx, rec))

	older := domain.ExecutionRecord{
		ID: "exec-0", TokenIn: "0xc1", TokenOut: "0xd1", Amount: decimal.NewFromInt(2),
		Strategy: "uniswap", Status: domain.ExecutionFailed, FailedStep: 0, FailedSub: 1,
		Error: "split reverted", StartedAt: started.Add(-time.Hour),
	}
	require.NoError(t, db.SaveExecution(ctx, older))

	recs, err := db.GetExecutions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "exec-1", recs[0].ID)
	assert.Equal(t, domain.ExecutionCompleted, recs[0].Status)
	assert.Equal(t, "0xfeed", recs[0].TxHash)
	assert.True(t, recs[0].AutoSplit)
	assert.Equal(t, -1, recs[0].FailedStep)
	assert.True(t, recs[0].Amount.Equal(decimal.RequireFromString("1.5")))
	require.NotNil(t, recs[0].FinishedAt)
	assert.Equal(t, finished, *recs[0].FinishedAt)

	assert.Equal(t, "exec-0", recs[1].ID)
	assert.Equal(t, 0, recs[1].FailedStep)
	assert.Equal(t, 1, recs[1].FailedSub)
	assert.Equal(t, "split reverted", recs[1].Error)
	assert.Nil(t, recs[1].FinishedAt)

	limited, err := db.GetExecutions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
