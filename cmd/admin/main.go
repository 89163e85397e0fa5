// Command admin hosts small operational utilities that talk to the
// exchange directly, outside the Trading Engine's own loop: canceling a
// stuck order by ID, and a live-execution probe that exercises the full
// submit→wait→cancel→verify-artifact path with a minimal real order.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/iljae-kwon/korbit-engine/config"
	"github.com/iljae-kwon/korbit-engine/internal/domain"
	"github.com/iljae-kwon/korbit-engine/internal/execution"
	"github.com/iljae-kwon/korbit-engine/internal/korbitapi"
	"github.com/iljae-kwon/korbit-engine/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "path to config file")
	cancelID := flag.String("cancel", "", "order ID to cancel and exit")
	probeMarket := flag.String("probe", "", "market to run the live-execution probe against, e.g. KRW-BTC")
	probeAmountKRW := flag.Float64("probe-amount", 5100, "notional KRW for the probe order")
	probeBelowBidPct := flag.Float64("probe-below-bid-pct", 0.02, "fraction below best bid to place the probe limit order")
	probeWait := flag.Duration("probe-wait", 3*time.Second, "time to wait before canceling the probe order")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	limiter := ratelimit.New()
	creds := korbitapi.Credentials{AccessKey: cfg.API.AccessKey, SecretKey: cfg.API.SecretKey}
	client := korbitapi.NewClient(cfg.API.RESTBase, creds, limiter, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *cancelID != "":
		runCancel(ctx, client, *cancelID)
	case *probeMarket != "":
		runProbe(ctx, client, cfg, *probeMarket, *probeAmountKRW, *probeBelowBidPct, *probeWait)
	default:
		fmt.Fprintln(os.Stderr, "admin: one of -cancel or -probe is required")
		flag.Usage()
		os.Exit(2)
	}
}

func runCancel(ctx context.Context, client *korbitapi.Client, orderID string) {
	order, err := client.Order(ctx, orderID)
	if err != nil {
		slog.Error("admin: failed to look up order", "order_id", orderID, "err", err)
		os.Exit(1)
	}
	slog.Info("admin: found order", "order_id", orderID, "market", order.Market, "status", order.Status)

	if err := client.CancelOrder(ctx, orderID); err != nil {
		slog.Error("admin: cancel failed", "order_id", orderID, "err", err)
		os.Exit(1)
	}
	slog.Info("admin: order canceled", "order_id", orderID)
}

// runProbe submits a small sub-market limit BUY order priced
// belowBidPct below the current best bid (so it rests without filling
// under normal conditions), waits, cancels it, and verifies the
// execution-update artifact recorded the probe order's id.
func runProbe(ctx context.Context, client *korbitapi.Client, cfg *config.Config, market string, amountKRW, belowBidPct float64, wait time.Duration) {
	slog.Info("admin: starting live-execution probe",
		"market", market, "amount_krw", amountKRW, "below_bid_pct", belowBidPct, "wait", wait)

	updatePath := cfg.Storage.UpdatesPath + ".probe"
	writer, err := execution.NewUpdateWriter(updatePath)
	if err != nil {
		slog.Error("admin: failed to open probe update writer", "err", err)
		os.Exit(1)
	}
	defer writer.Close()

	orders := execution.NewManager(client, nil, writer)

	books, err := client.Orderbook(ctx, []string{market})
	if err != nil {
		slog.Error("admin: failed to fetch order book", "market", market, "err", err)
		os.Exit(1)
	}
	book := books[market]
	bestBid := book.BestBid()
	if bestBid <= 0 {
		slog.Error("admin: no resting bid for market", "market", market)
		os.Exit(1)
	}

	price := bestBid * (1 - belowBidPct)
	volume := amountKRW / price

	order, err := orders.Submit(ctx, market, domain.Buy, price, volume, "admin-probe", domain.ExitParams{})
	if err != nil {
		slog.Error("admin: probe submit failed", "err", err)
		os.Exit(1)
	}
	slog.Info("admin: probe order submitted", "order_id", order.ID, "price", price, "volume", volume)

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		slog.Info("admin: probe interrupted before cancel window elapsed")
	}

	if err := orders.Cancel(context.Background(), order.ID); err != nil {
		slog.Error("admin: probe cancel failed", "order_id", order.ID, "err", err)
		os.Exit(1)
	}
	slog.Info("admin: probe order canceled", "order_id", order.ID)

	data, err := os.ReadFile(updatePath)
	if err != nil {
		slog.Error("admin: failed to read probe update artifact", "path", updatePath, "err", err)
		os.Exit(1)
	}
	if !bytes.Contains(data, []byte(order.ID)) {
		slog.Error("admin: probe order missing from update artifact", "order_id", order.ID, "path", updatePath)
		os.Exit(1)
	}

	printProbeSummary(order, price, volume)
}

func printProbeSummary(order domain.Order, price, volume float64) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Order ID", order.ID)
	table.Append("Market", order.Market)
	table.Append("Submitted Price", fmt.Sprintf("%.0f", price))
	table.Append("Submitted Volume", fmt.Sprintf("%.8f", volume))
	table.Render()
}
