// Package fulfiller settles user withdrawal requests exactly once despite
// duplicate event delivery. The ledger's fulfilled flag is authoritative;
// the local processed set only skips redundant re-reads.
//
// If the fulfill bundle fails after the lending withdrawal landed, the
// redeemed coin stays in the keeper wallet and the retry redeems again.
// The coin is never reclaimed automatically: the reconciler may have its own
// coin in flight between two transactions, and grabbing it would corrupt
// that move. Stranded coins are visible as tracker-vs-position drift, which
// alerts, and are swept back manually.
package fulfiller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slyncl12/luckyvault/internal/domain"
	"github.com/slyncl12/luckyvault/internal/ports"
)

// Config bounds the event scan.
type Config struct {
	// Lookback is the hard floor of the scan window: events older than this
	// are never re-fetched, bounding scan cost.
	Lookback time.Duration
	// CursorOverlap re-scans slightly behind the persisted cursor to cover
	// events that landed with equal timestamps.
	CursorOverlap time.Duration
}

// TickResult summarizes one fulfillment tick.
type TickResult struct {
	Scanned   int
	Fulfilled int
	Skipped   int // already processed or already settled on the ledger
	Failed    int
}

// Engine is the withdrawal fulfillment engine.
type Engine struct {
	ledger  ports.PoolLedger
	lending ports.LendingMarket
	store   ports.KeeperStore
	cfg     Config
	now     func() time.Time
}

// New creates an Engine with injected dependencies.
func New(ledger ports.PoolLedger, lending ports.LendingMarket, store ports.KeeperStore, cfg Config) *Engine {
	return &Engine{ledger: ledger, lending: lending, store: store, cfg: cfg, now: time.Now}
}

// RunOnce scans for withdrawal-requested events and settles each pending
// request. Requests are independent: one failure never blocks the others,
// and a failed request is simply retried on the next tick.
func (e *Engine) RunOnce(ctx context.Context) (*TickResult, error) {
	since := e.scanFloor(ctx)

	events, err := e.ledger.QueryWithdrawalRequests(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fulfiller.RunOnce: query events: %w", err)
	}

	result := &TickResult{Scanned: len(events)}
	var newest time.Time
	allSettled := true

	for _, ev := range events {
		if ev.Timestamp.After(newest) {
			newest = ev.Timestamp
		}

		settled, err := e.processEvent(ctx, ev)
		switch {
		case err != nil:
			// Narrow scope: log and move on to the next request.
			slog.Warn("fulfiller: request failed, will retry next tick",
				"request_id", ev.RequestID, "err", err)
			result.Failed++
			allSettled = false
		case settled == settledNow:
			result.Fulfilled++
		default:
			result.Skipped++
		}
	}

	// Advance the cursor only past batches where every event is settled, so
	// a failed request keeps being rescanned until it lands.
	if allSettled && !newest.IsZero() {
		if err := e.store.SaveEventCursor(ctx, newest); err != nil {
			slog.Warn("fulfiller: cursor save failed", "err", err)
		}
	}

	return result, nil
}

type outcome int

const (
	skipped outcome = iota
	settledNow
)

// processEvent handles one event end to end. Duplicate delivery is the
// normal case: the re-read of the request object decides, not the event.
func (e *Engine) processEvent(ctx context.Context, ev domain.WithdrawalEvent) (outcome, error) {
	processed, err := e.store.IsProcessed(ctx, ev.RequestID)
	if err != nil {
		return skipped, fmt.Errorf("processed lookup: %w", err)
	}
	if processed {
		return skipped, nil
	}

	req, err := e.ledger.GetWithdrawalRequest(ctx, ev.RequestID)
	if errors.Is(err, ports.ErrObjectNotFound) {
		// Settled and destroyed before we got here.
		e.markProcessed(ctx, ev.RequestID)
		return skipped, nil
	}
	if err != nil {
		return skipped, fmt.Errorf("re-fetch request: %w", err)
	}
	if req.Fulfilled {
		e.markProcessed(ctx, ev.RequestID)
		return skipped, nil
	}

	slog.Info("fulfiller: settling withdrawal",
		"request_id", req.ID, "user", req.User, "amount", req.Amount)

	// Pull liquidity first; if the protocol lacks liquidity this fails
	// atomically and nothing has moved yet.
	fund, err := e.lending.Withdraw(ctx, req.Amount)
	if err != nil {
		return skipped, fmt.Errorf("lending withdraw: %w", err)
	}

	// Atomic bundle: tracker record + request settlement land together.
	if err := e.ledger.FulfillWithdrawal(ctx, req.ID, req.Amount, fund); err != nil {
		return skipped, fmt.Errorf("fulfill bundle: %w", err)
	}

	e.markProcessed(ctx, req.ID)
	return settledNow, nil
}

// scanFloor picks where to start scanning: the persisted cursor (minus
// overlap) when it is newer than the lookback floor, the floor otherwise.
func (e *Engine) scanFloor(ctx context.Context) time.Time {
	floor := e.now().Add(-e.cfg.Lookback)

	cursor, err := e.store.LoadEventCursor(ctx)
	if err != nil {
		slog.Warn("fulfiller: cursor load failed, using lookback floor", "err", err)
		return floor
	}
	if cursor.IsZero() {
		return floor
	}
	if from := cursor.Add(-e.cfg.CursorOverlap); from.After(floor) {
		return from
	}
	return floor
}

// markProcessed records the fast-path skip. Failures are logged only: the
// ledger re-read keeps correctness even with a cold cache.
func (e *Engine) markProcessed(ctx context.Context, requestID string) {
	if err := e.store.MarkProcessed(ctx, requestID); err != nil {
		slog.Warn("fulfiller: failed to mark processed", "request_id", requestID, "err", err)
	}
}
