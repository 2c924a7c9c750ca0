package ports

import (
	"context"
	"errors"
	"time"

	"github.com/slyncl12/luckyvault/internal/domain"
)

// ErrObjectNotFound is returned when a ledger object no longer exists
// (withdrawal request objects are destroyed once settled).
var ErrObjectNotFound = errors.New("ledger object not found")

// PoolLedger is the keeper's window onto the on-chain pool contract.
// Every write submits an atomic operation bundle, waits for finality with a
// bounded timeout, and returns an error if the bundle did not land. A
// timeout is treated as failed-and-retriable, never as succeeded.
type PoolLedger interface {
	// GetPool reads the pool's current liquid balance and deposit totals.
	GetPool(ctx context.Context) (domain.Pool, error)

	// GetYieldTracker reads the shared principal/yield bookkeeping object.
	GetYieldTracker(ctx context.Context) (domain.YieldTracker, error)

	// GetWithdrawalRequest re-fetches one request object by ID.
	// Returns ErrObjectNotFound if the request was already settled and destroyed.
	GetWithdrawalRequest(ctx context.Context, requestID string) (domain.WithdrawalRequest, error)

	// QueryWithdrawalRequests returns withdrawal-requested events at or after
	// since, newest first. Duplicate delivery is expected.
	QueryWithdrawalRequests(ctx context.Context, since time.Time) ([]domain.WithdrawalEvent, error)

	// WithdrawForRebalance pulls amount out of the pool's liquid balance and
	// returns a fund handle for a subsequent lending deposit.
	WithdrawForRebalance(ctx context.Context, amount domain.Amount) (domain.FundHandle, error)

	// DepositFromRebalance returns previously withdrawn liquidity to the pool.
	DepositFromRebalance(ctx context.Context, fund domain.FundHandle) error

	// FulfillWithdrawal settles one request with the given funds. The tracker
	// update and the request settlement land in one atomic bundle: either the
	// request flips to fulfilled and the books record the principal out, or
	// nothing happens.
	FulfillWithdrawal(ctx context.Context, requestID string, amount domain.Amount, fund domain.FundHandle) error

	// RecordLendingDeposit records principal moved into the lending protocol
	// against the yield tracker.
	RecordLendingDeposit(ctx context.Context, amount domain.Amount) error

	// RecordLendingWithdrawal records principal and/or yield pulled out of the
	// lending protocol against the yield tracker.
	RecordLendingWithdrawal(ctx context.Context, principal, yieldEarned domain.Amount) error

	// ExecuteDraw runs the on-chain winner selection for one cadence. An empty
	// winner in the result means no eligible participants.
	ExecuteDraw(ctx context.Context, cadence domain.Cadence) (domain.DrawResult, error)

	// PayPrize transfers the prize funds to the winner and records the yield
	// withdrawal against the tracker in one atomic bundle.
	PayPrize(ctx context.Context, winner string, amount domain.Amount, fund domain.FundHandle) error
}
