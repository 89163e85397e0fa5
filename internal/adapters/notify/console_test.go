package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iljae-kwon/korbit-engine/internal/adapters/notify"
	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

func TestReportPerformance_PrintsMetricsTable(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	metrics := domain.RiskMetrics{
		TotalEquity: 1_050_000, AvailableCash: 500_000, InvestedCapital: 550_000,
		RealizedPnL: 50_000, TotalPnL: 50_000, WinCount: 3, LossCount: 1,
		WinRate: 0.75, ProfitFactor: 2.1, Sharpe: 1.4, MaxPositions: 5, ActivePositions: 2,
	}

	err := c.ReportPerformance(context.Background(), metrics, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Win Rate")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "no completed trades")
}

func TestReportPerformance_PrintsRecentTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	trades := []domain.TradeHistory{
		{Market: "KRW-BTC", EntryPrice: 100_000_000, ExitPrice: 102_000_000, Quantity: 0.01,
			ProfitLoss: 20_000, ProfitLossPct: 0.02, ExitReason: "take_profit", StrategyName: "momentum"},
	}

	err := c.ReportPerformance(context.Background(), domain.RiskMetrics{}, trades)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "KRW-BTC")
	assert.Contains(t, out, "take_profit")
	assert.Contains(t, out, "momentum")
}

func TestReportPerformance_TruncatesToMostRecentTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	trades := make([]domain.TradeHistory, 0, 15)
	for i := 0; i < 15; i++ {
		trades = append(trades, domain.TradeHistory{Market: "KRW-ETH", ExitReason: "strategy_exit"})
	}
	trades[0].Market = "KRW-ADA"
	trades[14].Market = "KRW-XRP"

	err := c.ReportPerformance(context.Background(), domain.RiskMetrics{}, trades)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "KRW-XRP")
	assert.NotContains(t, buf.String(), "KRW-ADA")
}
