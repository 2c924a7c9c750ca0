package domain

import "time"

// FundHandle is an opaque reference to a concrete transferable amount
// (a coin object on the ledger). Produced by a withdraw/split operation
// and consumed by exactly one subsequent operation.
type FundHandle string

// Pool is the on-chain contract holding user deposits. Read-only from the
// keeper's point of view; it is mutated only through defined admin operations.
type Pool struct {
	ID            string
	Balance       Amount // liquid balance available in the pool
	TotalDeposits Amount // total principal deposited by users
	Paused        bool
	Participants  int
}

// YieldTracker is the shared on-chain record of principal moved to the
// lending protocol and yield withdrawn from it.
//
// Invariant: Principal never exceeds the current lending position value.
// A violation means protocol loss or bookkeeping drift and must be alerted,
// never silently corrected.
type YieldTracker struct {
	ID             string
	Principal      Amount // cumulative principal currently parked in lending
	YieldWithdrawn Amount // cumulative yield paid out as prizes
}

// Position is the keeper identity's claim on the lending protocol.
// Queried fresh every tick, never cached across ticks.
type Position struct {
	Principal    Amount
	CurrentValue Amount
}

// YieldAvailable derives the yield accrued on top of tracked principal.
// Floored at zero: a position below principal is an invariant violation
// handled elsewhere, not negative yield.
func YieldAvailable(positionValue, trackedPrincipal Amount) Amount {
	return positionValue.SubFloor(trackedPrincipal)
}

// WithdrawalRequest is created by a user withdrawal call and settled by
// exactly one keeper operation. The Fulfilled flag on the ledger is the
// authoritative duplicate guard.
type WithdrawalRequest struct {
	ID          string
	User        string
	Amount      Amount
	RequestedAt time.Time
	Fulfilled   bool
}

// WithdrawalEvent is the ledger event emitted when a user requests a
// withdrawal. Events may be delivered more than once.
type WithdrawalEvent struct {
	RequestID string
	User      string
	Amount    Amount
	Timestamp time.Time
	TxDigest  string
}
