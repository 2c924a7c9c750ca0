package domain

import "fmt"

// Band is the hysteresis band for pool liquidity. While the pool's liquid
// balance stays inside [Min, Max] no funds move, which prevents thrashing
// between the pool and the lending protocol.
type Band struct {
	Min    Amount
	Target Amount
	Max    Amount
}

// Validate enforces min < target < max.
func (b Band) Validate() error {
	if !(b.Min < b.Target && b.Target < b.Max) {
		return fmt.Errorf("domain.Band: want min < target < max, got %s < %s < %s",
			b.Min, b.Target, b.Max)
	}
	return nil
}

// RebalanceAction is the direction liquidity should move, if any.
type RebalanceAction int

const (
	ActionNone RebalanceAction = iota
	ActionDeposit  // pool → lending protocol
	ActionWithdraw // lending protocol → pool
)

func (a RebalanceAction) String() string {
	switch a {
	case ActionDeposit:
		return "DEPOSIT"
	case ActionWithdraw:
		return "WITHDRAW"
	default:
		return "NONE"
	}
}

// RebalanceDecision is the outcome of one reconciliation tick.
type RebalanceDecision struct {
	Action RebalanceAction
	Amount Amount
}

// DecideRebalance computes whether liquidity should move and how much,
// driven purely by current balances so that re-running it after any partial
// failure recomputes the full delta from scratch.
func DecideRebalance(poolBalance, positionValue Amount, b Band) RebalanceDecision {
	switch {
	case poolBalance > b.Max:
		return RebalanceDecision{Action: ActionDeposit, Amount: poolBalance - b.Target}
	case poolBalance < b.Min && positionValue > 0:
		need := b.Target - poolBalance
		return RebalanceDecision{Action: ActionWithdraw, Amount: MinAmount(need, positionValue)}
	default:
		return RebalanceDecision{Action: ActionNone}
	}
}
