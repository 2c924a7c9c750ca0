package ports

import (
	"context"
	"time"

	"github.com/slyncl12/luckyvault/internal/domain"
)

// KeeperStore is the keeper's durable local cache. Everything in it can be
// discarded and rebuilt from ledger state without correctness loss; the
// ledger is always authoritative.
type KeeperStore interface {
	// IsProcessed reports whether a withdrawal request was already confirmed
	// settled. A fast path only: callers must still re-check the ledger.
	IsProcessed(ctx context.Context, requestID string) (bool, error)

	// MarkProcessed records a settled request ID.
	MarkProcessed(ctx context.Context, requestID string) error

	// LoadDrawWindows returns the persisted last-execution time per cadence.
	// Cadences never executed are absent from the map.
	LoadDrawWindows(ctx context.Context) (map[domain.Cadence]time.Time, error)

	// SaveDrawExecuted persists a cadence execution time.
	SaveDrawExecuted(ctx context.Context, cadence domain.Cadence, at time.Time) error

	// LoadEventCursor returns the timestamp of the newest fully-settled
	// withdrawal event batch (zero time if none).
	LoadEventCursor(ctx context.Context) (time.Time, error)

	// SaveEventCursor advances the event cursor.
	SaveEventCursor(ctx context.Context, at time.Time) error

	Close() error
}
