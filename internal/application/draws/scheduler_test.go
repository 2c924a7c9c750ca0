package draws

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

	tracker domain.YieldTracker
	winner  string

	drawErr error
	payErr  error

	executed []domain.Cadence
	payouts  []domain.Amount
	paidTo   []string
}

func (f *fakeLedger) ExecuteDraw(_ context.Context, c domain.Cadence) (domain.DrawResult, error) {
	if f.drawErr != nil {
		return domain.DrawResult{}, f.drawErr
	}
	f.executed = append(f.executed, c)
	return domain.DrawResult{
		Cadence:    c,
		Winner:     f.winner,
		TxDigest:   "digest",
		ExecutedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (f *fakeLedger) GetYieldTracker(context.Context) (domain.YieldTracker, error) {
	return f.tracker, nil
}

func (f *fakeLedger) PayPrize(_ context.Context, winner string, amount domain.Amount, _ domain.FundHandle) error {
	if f.payErr != nil {
		return f.payErr
	}
	f.payouts = append(f.payouts, amount)
	f.paidTo = append(f.paidTo, winner)
	return nil
}

type fakeLending struct {
	ports.LendingMarket

	position    domain.Position
	withdrawals []domain.Amount
}

func (f *fakeLending) GetPosition(context.Context) (domain.Position, error) {
	return f.position, nil
}

func (f *fakeLending) Withdraw(_ context.Context, amount domain.Amount) (domain.FundHandle, error) {
	f.withdrawals = append(f.withdrawals, amount)
	return "0xcoin", nil
}

type fakeStore struct {
	ports.KeeperStore

	windows map[domain.Cadence]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{windows: map[domain.Cadence]time.Time{}}
}

func (f *fakeStore) LoadDrawWindows(context.Context) (map[domain.Cadence]time.Time, error) {
	return f.windows, nil
}

func (f *fakeStore) SaveDrawExecuted(_ context.Context, c domain.Cadence, at time.Time) error {
	f.windows[c] = at
	return nil
}

type fakeAlerter struct {
	subjects []string
}

func (f *fakeAlerter) Alert(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

var (
	// Top of an hour, first of the month on a Sunday: every cadence boundary.
	boundary = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	defaultShares = map[domain.Cadence]float64{
		domain.CadenceHourly:  1,
		domain.CadenceDaily:   5,
		domain.CadenceWeekly:  20,
		domain.CadenceMonthly: 50,
	}
)

func newTestScheduler(t *testing.T, ledger *fakeLedger, lending *fakeLending,
	store *fakeStore, alerts *fakeAlerter, at time.Time) *Scheduler {
	t.Helper()
	s, err := New(context.Background(), ledger, lending, store, alerts, Config{
		Shares:        defaultShares,
		DustThreshold: domain.FromUSD(0.01),
	})
	require.NoError(t, err)
	s.now = func() time.Time { return at }
	return s
}

func TestRunCadence_DrawAndPayout(t *testing.T) {
	ledger := &fakeLedger{
		winner:  "0xwinner",
		tracker: domain.YieldTracker{Principal: domain.FromUSD(1000)},
	}
	lending := &fakeLending{position: domain.Position{CurrentValue: domain.FromUSD(1010)}}
	store := newFakeStore()
	s := newTestScheduler(t, ledger, lending, store, &fakeAlerter{}, boundary)

	err := s.RunCadence(context.Background(), domain.CadenceDaily)
	require.NoError(t, err)

	assert.Equal(t, []domain.Cadence{domain.CadenceDaily}, ledger.executed)

	// $10 yield, 5% daily share.
	assert.Equal(t, []domain.Amount{domain.FromUSD(0.50)}, lending.withdrawals)
	assert.Equal(t, []domain.Amount{domain.FromUSD(0.50)}, ledger.payouts)
	assert.Equal(t, []string{"0xwinner"}, ledger.paidTo)

	// Window advanced and persisted.
	assert.False(t, store.windows[domain.CadenceDaily].IsZero())
}

func TestRunCadence_NotAtBoundarySkips(t *testing.T) {
	ledger := &fakeLedger{winner: "0xwinner"}
	offBoundary := boundary.Add(17 * time.Minute)
	s := newTestScheduler(t, ledger, &fakeLending{}, newFakeStore(), &fakeAlerter{}, offBoundary)

	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceDaily))
	assert.Empty(t, ledger.executed)
}

func TestRunCadence_RecentExecutionBlocksRefire(t *testing.T) {
	// A restart right after a draw must not re-fire at the same boundary.
	ledger := &fakeLedger{winner: "0xwinner"}
	store := newFakeStore()
	store.windows[domain.CadenceHourly] = boundary.Add(-time.Minute)
	s := newTestScheduler(t, ledger, &fakeLending{}, store, &fakeAlerter{}, boundary)

	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceHourly))
	assert.Empty(t, ledger.executed)
}

func TestRunCadence_ZeroYieldNoPayout(t *testing.T) {
	ledger := &fakeLedger{
		winner:  "0xwinner",
		tracker: domain.YieldTracker{Principal: domain.FromUSD(1000)},
	}
	lending := &fakeLending{position: domain.Position{CurrentValue: domain.FromUSD(1000)}}
	store := newFakeStore()
	alerts := &fakeAlerter{}
	s := newTestScheduler(t, ledger, lending, store, alerts, boundary)

	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceHourly))

	// Draw ran, window advanced, but no prize moved and no alert fired.
	assert.Len(t, ledger.executed, 1)
	assert.Empty(t, lending.withdrawals)
	assert.Empty(t, ledger.payouts)
	assert.Empty(t, alerts.subjects)
	assert.False(t, store.windows[domain.CadenceHourly].IsZero())
}

func TestRunCadence_DustPrizeDeferred(t *testing.T) {
	// $0.50 yield at 1% hourly share is half a cent: below the floor, so the
	// yield stays in lending for a later draw.
	ledger := &fakeLedger{
		winner:  "0xwinner",
		tracker: domain.YieldTracker{Principal: domain.FromUSD(1000)},
	}
	lending := &fakeLending{position: domain.Position{CurrentValue: domain.FromUSD(1000.50)}}
	s := newTestScheduler(t, ledger, lending, newFakeStore(), &fakeAlerter{}, boundary)

	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceHourly))
	assert.Empty(t, lending.withdrawals)
	assert.Empty(t, ledger.payouts)
}

func TestRunCadence_DrawFailureLeavesWindowUntouched(t *testing.T) {
	ledger := &fakeLedger{drawErr: errors.New("rpc timeout")}
	store := newFakeStore()
	s := newTestScheduler(t, ledger, &fakeLending{}, store, &fakeAlerter{}, boundary)

	err := s.RunCadence(context.Background(), domain.CadenceDaily)
	require.Error(t, err)

	// Untouched window: the next boundary retries the draw.
	assert.True(t, s.windows[domain.CadenceDaily].LastExecutedAt.IsZero())
	assert.Empty(t, store.windows)
}

func TestRunCadence_PayoutFailureAlertsWithoutRollback(t *testing.T) {
	ledger := &fakeLedger{
		winner:  "0xwinner",
		tracker: domain.YieldTracker{Principal: domain.FromUSD(1000)},
		payErr:  errors.New("tx aborted"),
	}
	lending := &fakeLending{position: domain.Position{CurrentValue: domain.FromUSD(1010)}}
	alerts := &fakeAlerter{}
	s := newTestScheduler(t, ledger, lending, newFakeStore(), alerts, boundary)

	// The draw happened on-chain, so RunCadence reports success and escalates
	// the payout for manual settlement instead of re-drawing.
	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceDaily))

	assert.Equal(t, []string{"draw payout failed"}, alerts.subjects)
	assert.False(t, s.windows[domain.CadenceDaily].LastExecutedAt.IsZero())
}

func TestRunCadence_NoWinnerAdvancesWindow(t *testing.T) {
	ledger := &fakeLedger{winner: ""}
	lending := &fakeLending{}
	store := newFakeStore()
	s := newTestScheduler(t, ledger, lending, store, &fakeAlerter{}, boundary)

	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceWeekly))

	assert.Len(t, ledger.executed, 1)
	assert.Empty(t, lending.withdrawals)
	assert.False(t, store.windows[domain.CadenceWeekly].IsZero())
}

func TestRunCadence_InFlightExecutionSkips(t *testing.T) {
	// The boundary re-fired while the same cadence's draw is still running:
	// the new invocation must drop, not queue a second draw.
	ledger := &fakeLedger{winner: "0xwinner"}
	s := newTestScheduler(t, ledger, &fakeLending{}, newFakeStore(), &fakeAlerter{}, boundary)
	s.guards[domain.CadenceHourly].Store(true)

	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceHourly))
	assert.Empty(t, ledger.executed)

	// Released guard lets the next invocation through.
	s.guards[domain.CadenceHourly].Store(false)
	require.NoError(t, s.RunCadence(context.Background(), domain.CadenceHourly))
	assert.Len(t, ledger.executed, 1)
}

func TestNew_RestoresPersistedWindows(t *testing.T) {
	store := newFakeStore()
	last := boundary.Add(-2 * time.Hour)
	store.windows[domain.CadenceMonthly] = last

	s := newTestScheduler(t, &fakeLedger{}, &fakeLending{}, store, &fakeAlerter{}, boundary)
	assert.Equal(t, last, s.windows[domain.CadenceMonthly].LastExecutedAt)
	assert.Equal(t, 50.0, s.windows[domain.CadenceMonthly].YieldSharePct)
}
