// Package reconciler keeps the pool's liquid balance inside the configured
// hysteresis band by moving funds to and from the lending protocol.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slyncl12/luckyvault/internal/domain"
	"github.com/slyncl12/luckyvault/internal/ports"
)

// Config holds the reconciler's thresholds.
type Config struct {
	Band domain.Band
}

// TickResult is everything one reconciliation tick observed and did.
type TickResult struct {
	PoolBalance      domain.Amount
	PositionValue    domain.Amount
	TrackedPrincipal domain.Amount
	YieldAvailable   domain.Amount
	Action           domain.RebalanceAction
	Moved            domain.Amount
}

// Reconciler reads the three sources of truth (pool, lending position, yield
// tracker) and moves liquidity when the pool drifts outside the band. Every
// decision is recomputed from current balances, so any tick is safe to
// re-run after any partial failure.
type Reconciler struct {
	ledger  ports.PoolLedger
	lending ports.LendingMarket
	alerts  ports.Alerter
	cfg     Config
}

// New creates a Reconciler with injected dependencies.
func New(ledger ports.PoolLedger, lending ports.LendingMarket, alerts ports.Alerter, cfg Config) *Reconciler {
	return &Reconciler{ledger: ledger, lending: lending, alerts: alerts, cfg: cfg}
}

// RunOnce executes one reconciliation tick.
func (r *Reconciler) RunOnce(ctx context.Context) (*TickResult, error) {
	pool, err := r.ledger.GetPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler.RunOnce: read pool: %w", err)
	}
	tracker, err := r.ledger.GetYieldTracker(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler.RunOnce: read tracker: %w", err)
	}
	position, err := r.lending.GetPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler.RunOnce: read position: %w", err)
	}

	result := &TickResult{
		PoolBalance:      pool.Balance,
		PositionValue:    position.CurrentValue,
		TrackedPrincipal: tracker.Principal,
		YieldAvailable:   domain.YieldAvailable(position.CurrentValue, tracker.Principal),
	}

	// Tracked principal above the position value means protocol loss or
	// bookkeeping drift. Alert and stand down: auto-correcting risks
	// compounding the drift with real fund movements.
	if tracker.Principal > position.CurrentValue {
		detail := fmt.Sprintf("tracked principal %s exceeds position value %s",
			tracker.Principal, position.CurrentValue)
		slog.Error("reconciler: invariant violation", "detail", detail)
		if err := r.alerts.Alert(ctx, "yield tracker drift", detail); err != nil {
			slog.Warn("reconciler: alert delivery failed", "err", err)
		}
		return result, nil
	}

	if pool.Paused {
		slog.Info("reconciler: pool is paused, skipping")
		return result, nil
	}

	decision := domain.DecideRebalance(pool.Balance, position.CurrentValue, r.cfg.Band)
	result.Action = decision.Action

	switch decision.Action {
	case domain.ActionNone:
		slog.Debug("reconciler: pool inside band",
			"balance", pool.Balance, "yield", result.YieldAvailable)
		return result, nil
	case domain.ActionDeposit:
		if err := r.depositToLending(ctx, decision.Amount); err != nil {
			return result, err
		}
	case domain.ActionWithdraw:
		if err := r.withdrawToPool(ctx, decision.Amount); err != nil {
			return result, err
		}
	}

	result.Moved = decision.Amount
	return result, nil
}

// depositToLending moves excess pool liquidity into the lending protocol.
// Two phases: move the funds, then record the tracker update. If the record
// fails after the move landed, the next tick re-reads actual balances and
// the drift shows up as tracker-vs-position skew rather than a lost queue
// entry.
func (r *Reconciler) depositToLending(ctx context.Context, amount domain.Amount) error {
	slog.Info("reconciler: pool above band, depositing to lending", "amount", amount)

	fund, err := r.ledger.WithdrawForRebalance(ctx, amount)
	if err != nil {
		return fmt.Errorf("reconciler.depositToLending: withdraw from pool: %w", err)
	}
	if _, err := r.lending.Deposit(ctx, fund, amount); err != nil {
		return fmt.Errorf("reconciler.depositToLending: lending deposit: %w", err)
	}
	if err := r.ledger.RecordLendingDeposit(ctx, amount); err != nil {
		return fmt.Errorf("reconciler.depositToLending: record: %w", err)
	}
	return nil
}

// withdrawToPool pulls liquidity back from the lending protocol.
func (r *Reconciler) withdrawToPool(ctx context.Context, amount domain.Amount) error {
	slog.Info("reconciler: pool below band, withdrawing from lending", "amount", amount)

	fund, err := r.lending.Withdraw(ctx, amount)
	if err != nil {
		return fmt.Errorf("reconciler.withdrawToPool: lending withdraw: %w", err)
	}
	if err := r.ledger.DepositFromRebalance(ctx, fund); err != nil {
		return fmt.Errorf("reconciler.withdrawToPool: deposit to pool: %w", err)
	}
	if err := r.ledger.RecordLendingWithdrawal(ctx, amount, 0); err != nil {
		return fmt.Errorf("reconciler.withdrawToPool: record: %w", err)
	}
	return nil
}
