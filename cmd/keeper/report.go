package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/slyncl12/luckyvault/config"
	"github.com/slyncl12/luckyvault/internal/domain"
	"github.com/slyncl12/luckyvault/internal/ports"
)

// printReport dumps the keeper's view of the world: pool liquidity against
// the band, the lending position, available yield, and per-cadence draw
// state. Read-only, no transactions are submitted.
func printReport(ctx context.Context, ledger ports.PoolLedger, lending ports.LendingMarket,
	store ports.KeeperStore, cfg *config.Config) error {

	pool, err := ledger.GetPool(ctx)
	if err != nil {
		return fmt.Errorf("read pool: %w", err)
	}
	tracker, err := ledger.GetYieldTracker(ctx)
	if err != nil {
		return fmt.Errorf("read tracker: %w", err)
	}
	position, err := lending.GetPosition(ctx)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}

	band := cfg.Band()
	yield := domain.YieldAvailable(position.CurrentValue, tracker.Principal)

	fmt.Println()
	fmt.Println("=== LuckyVault Keeper Status ===")
	fmt.Println()

	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Metric", "Value")
	tbl.Append("Pool balance", pool.Balance.String())
	tbl.Append("Liquidity band", fmt.Sprintf("%s / %s / %s", band.Min, band.Target, band.Max))
	tbl.Append("In band", fmt.Sprintf("%t", pool.Balance >= band.Min && pool.Balance <= band.Max))
	tbl.Append("Pool paused", fmt.Sprintf("%t", pool.Paused))
	tbl.Append("Participants", fmt.Sprintf("%d", pool.Participants))
	tbl.Append("Lending position", position.CurrentValue.String())
	tbl.Append("Tracked principal", tracker.Principal.String())
	tbl.Append("Yield available", yield.String())
	if rate, err := lending.GetSupplyRate(ctx); err == nil {
		tbl.Append("Supply APY", fmt.Sprintf("%.2f%%", rate))
	} else {
		tbl.Append("Supply APY", "unavailable")
	}
	tbl.Render()

	printDrawReport(ctx, store, cfg)
	printPendingWithdrawals(ctx, ledger, cfg)
	return nil
}

func printDrawReport(ctx context.Context, store ports.KeeperStore, cfg *config.Config) {
	windows, err := store.LoadDrawWindows(ctx)
	if err != nil {
		fmt.Printf("\ndraw windows unavailable: %v\n", err)
		return
	}

	fmt.Println()
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Cadence", "Share", "Last draw", "Next boundary due")

	now := time.Now().UTC()
	shares := cfg.YieldShares()
	for _, c := range domain.Cadences {
		last := "never"
		if at, ok := windows[c]; ok && !at.IsZero() {
			last = at.UTC().Format(time.RFC3339)
		}
		w := domain.DrawWindow{Cadence: c, LastExecutedAt: windows[c]}
		due := "waiting"
		if w.Due(now) {
			due = "now"
		}
		tbl.Append(c.String(), fmt.Sprintf("%.0f%%", shares[c]), last, due)
	}
	tbl.Render()
}

func printPendingWithdrawals(ctx context.Context, ledger ports.PoolLedger, cfg *config.Config) {
	events, err := ledger.QueryWithdrawalRequests(ctx, time.Now().Add(-cfg.EventLookback()))
	if err != nil {
		fmt.Printf("\nwithdrawal events unavailable: %v\n", err)
		return
	}
	if len(events) == 0 {
		fmt.Println("\nno withdrawal requests in the lookback window")
		return
	}

	fmt.Println()
	tbl := tablewriter.NewWriter(os.Stdout)
	tbl.Header("Request", "User", "Amount", "Requested", "State")

	for _, ev := range events {
		state := "pending"
		req, err := ledger.GetWithdrawalRequest(ctx, ev.RequestID)
		switch {
		case errors.Is(err, ports.ErrObjectNotFound):
			state = "settled"
		case err != nil:
			state = "unknown"
		case req.Fulfilled:
			state = "fulfilled"
		}
		tbl.Append(shorten(ev.RequestID), shorten(ev.User), ev.Amount.String(),
			ev.Timestamp.UTC().Format(time.RFC3339), state)
	}
	tbl.Render()
}

func shorten(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:10] + ".."
}
