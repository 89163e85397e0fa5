// Package notify implements ports.Notifier: a console reporter that prints
// the shutdown performance summary as a pair of tablewriter tables, the way
// the teacher's Console printed opportunity tables to stdout.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/iljae-kwon/korbit-engine/internal/domain"
)

// Console implements ports.Notifier.
type Console struct {
	out      io.Writer
	maxTrades int
}

// NewConsole builds a console reporter writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout, maxTrades: 10}
}

// NewConsoleWriter builds a console reporter writing to w, for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, maxTrades: 10}
}

// ReportPerformance prints the portfolio metrics table followed by a table
// of the most recent trades, truncated to the last maxTrades entries.
func (c *Console) ReportPerformance(_ context.Context, metrics domain.RiskMetrics, recent []domain.TradeHistory) error {
	fmt.Fprintf(c.out, "[%s] performance report\n", time.Now().Format("2006-01-02 15:04:05"))

	c.printMetrics(metrics)

	if len(recent) == 0 {
		fmt.Fprintln(c.out, "no completed trades")
		return nil
	}
	c.printTrades(recent)
	return nil
}

func (c *Console) printMetrics(m domain.RiskMetrics) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")

	table.Append("Total Equity", fmt.Sprintf("%.0f KRW", m.TotalEquity))
	table.Append("Available Cash", fmt.Sprintf("%.0f KRW", m.AvailableCash))
	table.Append("Invested Capital", fmt.Sprintf("%.0f KRW", m.InvestedCapital))
	table.Append("Unrealized PnL", fmt.Sprintf("%+.0f KRW", m.UnrealizedPnL))
	table.Append("Realized PnL", fmt.Sprintf("%+.0f KRW", m.RealizedPnL))
	table.Append("Total PnL", fmt.Sprintf("%+.0f KRW", m.TotalPnL))
	table.Append("Win / Loss", fmt.Sprintf("%d / %d", m.WinCount, m.LossCount))
	table.Append("Win Rate", fmt.Sprintf("%.1f%%", m.WinRate*100))
	table.Append("Profit Factor", fmt.Sprintf("%.2f", m.ProfitFactor))
	table.Append("Sharpe", fmt.Sprintf("%.2f", m.Sharpe))
	table.Append("Current Drawdown", fmt.Sprintf("%.1f%%", m.CurrentDrawdown*100))
	table.Append("Max Drawdown", fmt.Sprintf("%.1f%%", m.MaxDrawdown*100))
	table.Append("Positions", fmt.Sprintf("%d / %d", m.ActivePositions, m.MaxPositions))

	table.Render()
}

func (c *Console) printTrades(trades []domain.TradeHistory) {
	if len(trades) > c.maxTrades {
		trades = trades[len(trades)-c.maxTrades:]
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Market", "Entry", "Exit", "Qty", "PnL", "PnL%", "Reason", "Strategy")

	for _, t := range trades {
		table.Append(
			t.Market,
			fmt.Sprintf("%.0f", t.EntryPrice),
			fmt.Sprintf("%.0f", t.ExitPrice),
			fmt.Sprintf("%.6f", t.Quantity),
			fmt.Sprintf("%+.0f", t.ProfitLoss),
			fmt.Sprintf("%+.2f%%", t.ProfitLossPct*100),
			t.ExitReason,
			t.StrategyName,
		)
	}

	table.Render()
}
