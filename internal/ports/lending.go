package ports

import (
	"context"

	"github.com/slyncl12/luckyvault/internal/domain"
)

// LendingMarket wraps the external yield protocol. Errors propagate to the
// caller uncaught; each caller has its own retry-on-next-tick policy.
type LendingMarket interface {
	// GetPosition returns the keeper identity's principal and current value.
	// Never cached: balance decisions need fresh numbers.
	GetPosition(ctx context.Context) (domain.Position, error)

	// Deposit supplies funds to the protocol and returns a receipt digest.
	Deposit(ctx context.Context, fund domain.FundHandle, amount domain.Amount) (string, error)

	// Withdraw pulls amount of liquidity out of the protocol. Fails atomically
	// if the protocol lacks liquidity, so no partial fund handle is produced.
	Withdraw(ctx context.Context, amount domain.Amount) (domain.FundHandle, error)

	// GetSupplyRate returns the current supply APY in percent. Quotes are
	// cached for a short TTL to bound external call volume.
	GetSupplyRate(ctx context.Context) (float64, error)
}
