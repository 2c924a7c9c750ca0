package fulfiller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slyncl12/luckyvault/internal/domain"
	"github.com/slyncl12/luckyvault/internal/ports"
)

type fakeLedger struct {
	ports.PoolLedger

	events   []domain.WithdrawalEvent
	requests map[string]*domain.WithdrawalRequest

	queriedSince []time.Time
	fulfilled    []string

	failFulfill map[string]error
	queryErr    error
}

func (f *fakeLedger) QueryWithdrawalRequests(_ context.Context, since time.Time) ([]domain.WithdrawalEvent, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.queriedSince = append(f.queriedSince, since)
	var out []domain.WithdrawalEvent
	for _, ev := range f.events {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeLedger) GetWithdrawalRequest(_ context.Context, id string) (domain.WithdrawalRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return domain.WithdrawalRequest{}, ports.ErrObjectNotFound
	}
	return *req, nil
}

func (f *fakeLedger) FulfillWithdrawal(_ context.Context, requestID string, _ domain.Amount, _ domain.FundHandle) error {
	if err := f.failFulfill[requestID]; err != nil {
		return err
	}
	f.fulfilled = append(f.fulfilled, requestID)
	f.requests[requestID].Fulfilled = true
	return nil
}

type fakeLending struct {
	ports.LendingMarket

	withdrawals []domain.Amount
	withdrawErr error
}

func (f *fakeLending) Withdraw(_ context.Context, amount domain.Amount) (domain.FundHandle, error) {
	if f.withdrawErr != nil {
		return "", f.withdrawErr
	}
	f.withdrawals = append(f.withdrawals, amount)
	return "0xcoin", nil
}

type fakeStore struct {
	ports.KeeperStore

	processed map[string]bool
	cursor    time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{processed: map[string]bool{}}
}

func (f *fakeStore) IsProcessed(_ context.Context, id string) (bool, error) {
	return f.processed[id], nil
}

func (f *fakeStore) MarkProcessed(_ context.Context, id string) error {
	f.processed[id] = true
	return nil
}

func (f *fakeStore) LoadEventCursor(context.Context) (time.Time, error) { return f.cursor, nil }

func (f *fakeStore) SaveEventCursor(_ context.Context, at time.Time) error {
	f.cursor = at
	return nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(ledger *fakeLedger, lending *fakeLending, store *fakeStore) *Engine {
	e := New(ledger, lending, store, Config{
		Lookback:      time.Hour,
		CursorOverlap: time.Minute,
	})
	e.now = func() time.Time { return testNow }
	return e
}

func pendingRequest(id string, usd float64, at time.Time) (*domain.WithdrawalRequest, domain.WithdrawalEvent) {
	req := &domain.WithdrawalRequest{
		ID:          id,
		User:        "0xuser",
		Amount:      domain.FromUSD(usd),
		RequestedAt: at,
	}
	ev := domain.WithdrawalEvent{
		RequestID: id,
		User:      req.User,
		Amount:    req.Amount,
		Timestamp: at,
	}
	return req, ev
}

func TestRunOnce_SettlesPendingRequest(t *testing.T) {
	req, ev := pendingRequest("0xreq1", 25, testNow.Add(-10*time.Minute))
	ledger := &fakeLedger{
		events:   []domain.WithdrawalEvent{ev},
		requests: map[string]*domain.WithdrawalRequest{req.ID: req},
	}
	lending := &fakeLending{}
	store := newFakeStore()

	result, err := newTestEngine(ledger, lending, store).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Fulfilled)
	assert.Equal(t, []domain.Amount{domain.FromUSD(25)}, lending.withdrawals)
	assert.Equal(t, []string{"0xreq1"}, ledger.fulfilled)
	assert.True(t, store.processed["0xreq1"])
	assert.Equal(t, ev.Timestamp, store.cursor)
}

func TestRunOnce_DuplicateEventSettlesOnce(t *testing.T) {
	req, ev := pendingRequest("0xreq1", 25, testNow.Add(-10*time.Minute))
	ledger := &fakeLedger{
		events:   []domain.WithdrawalEvent{ev, ev},
		requests: map[string]*domain.WithdrawalRequest{req.ID: req},
	}
	lending := &fakeLending{}
	store := newFakeStore()

	result, err := newTestEngine(ledger, lending, store).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Fulfilled)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, lending.withdrawals, 1)
	assert.Len(t, ledger.fulfilled, 1)
}

func TestRunOnce_ColdCacheTrustsLedgerFlag(t *testing.T) {
	// Processed set lost (restart with a wiped DB): the re-read sees the
	// request already fulfilled and nothing moves twice.
	req, ev := pendingRequest("0xreq1", 25, testNow.Add(-10*time.Minute))
	req.Fulfilled = true
	ledger := &fakeLedger{
		events:   []domain.WithdrawalEvent{ev},
		requests: map[string]*domain.WithdrawalRequest{req.ID: req},
	}
	lending := &fakeLending{}
	store := newFakeStore()

	result, err := newTestEngine(ledger, lending, store).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, lending.withdrawals)
	assert.True(t, store.processed["0xreq1"], "repopulates the fast path")
}

func TestRunOnce_DestroyedRequestObjectSkips(t *testing.T) {
	_, ev := pendingRequest("0xgone", 25, testNow.Add(-10*time.Minute))
	ledger := &fakeLedger{
		events:   []domain.WithdrawalEvent{ev},
		requests: map[string]*domain.WithdrawalRequest{},
	}
	store := newFakeStore()

	result, err := newTestEngine(ledger, &fakeLending{}, store).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.True(t, store.processed["0xgone"])
}

func TestRunOnce_FailureIsolatedPerRequest(t *testing.T) {
	reqA, evA := pendingRequest("0xreqA", 10, testNow.Add(-30*time.Minute))
	reqB, evB := pendingRequest("0xreqB", 20, testNow.Add(-20*time.Minute))
	ledger := &fakeLedger{
		events:      []domain.WithdrawalEvent{evA, evB},
		requests:    map[string]*domain.WithdrawalRequest{reqA.ID: reqA, reqB.ID: reqB},
		failFulfill: map[string]error{"0xreqA": errors.New("insufficient gas")},
	}
	lending := &fakeLending{}
	store := newFakeStore()
	engine := newTestEngine(ledger, lending, store)

	result, err := engine.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Fulfilled)
	assert.Equal(t, []string{"0xreqB"}, ledger.fulfilled)
	assert.False(t, store.processed["0xreqA"])

	// Cursor must not advance past the failed request.
	assert.True(t, store.cursor.IsZero())

	// Next tick: the failure is gone and A settles.
	ledger.failFulfill = nil
	result, err = engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fulfilled)
	assert.Contains(t, ledger.fulfilled, "0xreqA")
	assert.Equal(t, evB.Timestamp, store.cursor)
}

func TestRunOnce_LendingWithdrawFailureRetries(t *testing.T) {
	req, ev := pendingRequest("0xreq1", 25, testNow.Add(-10*time.Minute))
	ledger := &fakeLedger{
		events:   []domain.WithdrawalEvent{ev},
		requests: map[string]*domain.WithdrawalRequest{req.ID: req},
	}
	lending := &fakeLending{withdrawErr: errors.New("market paused")}
	store := newFakeStore()

	result, err := newTestEngine(ledger, lending, store).RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, ledger.fulfilled)
	assert.False(t, store.processed["0xreq1"])
}

func TestRunOnce_ScanFailureLeavesCursorUntouched(t *testing.T) {
	// An incomplete scan (node error, page cap) must not advance the cursor:
	// advancing past events nobody looked at would strand their requests.
	ledger := &fakeLedger{
		requests: map[string]*domain.WithdrawalRequest{},
		queryErr: errors.New("scan not exhausted after 20 pages"),
	}
	store := newFakeStore()
	store.cursor = testNow.Add(-5 * time.Minute)

	_, err := newTestEngine(ledger, &fakeLending{}, store).RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, store.cursor.Equal(testNow.Add(-5*time.Minute)))
}

func TestScanFloor_CursorBoundedByLookback(t *testing.T) {
	ledger := &fakeLedger{requests: map[string]*domain.WithdrawalRequest{}}
	store := newFakeStore()
	engine := newTestEngine(ledger, &fakeLending{}, store)

	// No cursor: lookback floor.
	_, err := engine.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, ledger.queriedSince, 1)
	assert.Equal(t, testNow.Add(-time.Hour), ledger.queriedSince[0])

	// Recent cursor: scan from cursor minus overlap.
	store.cursor = testNow.Add(-5 * time.Minute)
	_, err = engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, store.cursor.Add(-time.Minute), ledger.queriedSince[1])

	// Stale cursor (service was down for days): clamp to the lookback floor.
	store.cursor = testNow.Add(-72 * time.Hour)
	_, err = engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-time.Hour), ledger.queriedSince[2])
}
