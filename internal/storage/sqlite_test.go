package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplySchema(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveTrade_ThenGetTradesInRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	trade := domain.TradeHistory{
		Market: "KRW-BTC", EntryPrice: 100, ExitPrice: 110, Quantity: 1,
		ProfitLoss: 10, ProfitLossPct: 0.1, StrategyName: "momentum",
		ExitReason: "take_profit", EntryTime: now.Add(-time.Hour), ExitTime: now,
		Signal: domain.SignalMetadata{Regime: domain.RegimeTrending, Strength: 0.7},
	}
	require.NoError(t, s.SaveTrade(ctx, trade))

	trades, err := s.GetTrades(ctx, now.Add(-2*time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "KRW-BTC", trades[0].Market)
	assert.Equal(t, domain.RegimeTrending, trades[0].Signal.Regime)
}

func TestSavePosition_UpsertUpdatesExistingRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pos := domain.Position{Market: "KRW-BTC", EntryPrice: 100, Quantity: 1, InvestedAmount: 100, EntryTime: time.Now(), StopLoss: 95, TakeProfit1: 105, TakeProfit2: 110, StrategyName: "momentum"}
	require.NoError(t, s.SavePosition(ctx, pos))

	pos.Quantity = 0.5
	pos.HalfClosed = true
	require.NoError(t, s.SavePosition(ctx, pos))

	open, err := s.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 0.5, open[0].Quantity)
	assert.True(t, open[0].HalfClosed)
}

func TestDeletePosition_RemovesRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	pos := domain.Position{Market: "KRW-BTC", EntryPrice: 100, Quantity: 1, InvestedAmount: 100, EntryTime: time.Now(), StopLoss: 95, TakeProfit1: 105, TakeProfit2: 110, StrategyName: "momentum"}
	require.NoError(t, s.SavePosition(ctx, pos))
	require.NoError(t, s.DeletePosition(ctx, "KRW-BTC"))

	open, err := s.GetOpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 0)
}
