// Package draws fires the time-gated prize draws. Each cadence is an
// independent state machine: a cron entry fires at the calendar boundary,
// a dual gate blocks double fires, and the window only advances after the
// on-chain draw itself succeeds, never after the payout.
package draws

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/slyncl12/luckyvault/internal/domain"
	"github.com/slyncl12/luckyvault/internal/ports"
)

// Config holds per-cadence yield shares and the payout dust threshold.
type Config struct {
	Shares        map[domain.Cadence]float64
	DustThreshold domain.Amount
}

// Scheduler drives all draw cadences.
type Scheduler struct {
	ledger  ports.PoolLedger
	lending ports.LendingMarket
	store   ports.KeeperStore
	alerts  ports.Alerter
	cfg     Config

	cron    *cron.Cron
	windows map[domain.Cadence]*domain.DrawWindow
	guards  map[domain.Cadence]*atomic.Bool
	now     func() time.Time
}

// New creates a Scheduler and restores each cadence's last execution time
// from the store, so a restart inside a period cannot re-fire the draw.
func New(ctx context.Context, ledger ports.PoolLedger, lending ports.LendingMarket,
	store ports.KeeperStore, alerts ports.Alerter, cfg Config) (*Scheduler, error) {

	persisted, err := store.LoadDrawWindows(ctx)
	if err != nil {
		return nil, fmt.Errorf("draws.New: load windows: %w", err)
	}

	windows := make(map[domain.Cadence]*domain.DrawWindow, len(domain.Cadences))
	guards := make(map[domain.Cadence]*atomic.Bool, len(domain.Cadences))
	for _, c := range domain.Cadences {
		windows[c] = &domain.DrawWindow{
			Cadence:        c,
			LastExecutedAt: persisted[c],
			YieldSharePct:  cfg.Shares[c],
		}
		guards[c] = &atomic.Bool{}
	}

	return &Scheduler{
		ledger:  ledger,
		lending: lending,
		store:   store,
		alerts:  alerts,
		cfg:     cfg,
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		windows: windows,
		guards:  guards,
		now:     time.Now,
	}, nil
}

// Start registers one cron entry per cadence and begins firing. Boundary
// schedules live in the domain so the gating logic and the schedule cannot
// drift apart.
func (s *Scheduler) Start(ctx context.Context) error {
	for _, c := range domain.Cadences {
		cadence := c
		_, err := s.cron.AddFunc(cadence.CronSpec(), func() {
			if err := s.RunCadence(ctx, cadence); err != nil {
				slog.Error("draws: cadence failed", "cadence", cadence, "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("draws.Start: register %s: %w", cadence, err)
		}
	}

	s.cron.Start()
	slog.Info("draws: scheduler started",
		"hourly_share", s.cfg.Shares[domain.CadenceHourly],
		"daily_share", s.cfg.Shares[domain.CadenceDaily],
		"weekly_share", s.cfg.Shares[domain.CadenceWeekly],
		"monthly_share", s.cfg.Shares[domain.CadenceMonthly],
	)
	return nil
}

// Stop halts the cron and waits for any in-flight draw to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("draws: scheduler stopped")
}

// CheckAll runs every cadence that is currently due. Used by one-shot mode.
func (s *Scheduler) CheckAll(ctx context.Context) {
	for _, c := range domain.Cadences {
		if err := s.RunCadence(ctx, c); err != nil {
			slog.Error("draws: cadence failed", "cadence", c, "err", err)
		}
	}
}

// RunCadence executes one cadence if its dual gate allows it. Serialized
// per cadence: a draw still in flight when the boundary re-fires is skipped.
func (s *Scheduler) RunCadence(ctx context.Context, c domain.Cadence) error {
	guard := s.guards[c]
	if !guard.CompareAndSwap(false, true) {
		slog.Warn("draws: previous execution still in flight, skipping", "cadence", c)
		return nil
	}
	defer guard.Store(false)

	w := s.windows[c]
	now := s.now()
	if !w.Due(now) {
		slog.Debug("draws: not due", "cadence", c, "last", w.LastExecutedAt)
		return nil
	}

	slog.Info("draws: executing draw", "cadence", c)
	res, err := s.ledger.ExecuteDraw(ctx, c)
	if err != nil {
		// Window untouched: the draw never happened on-chain.
		return fmt.Errorf("draws.RunCadence: execute %s: %w", c, err)
	}

	// The draw itself succeeded; advance the window before attempting the
	// payout. Re-drawing after a payout failure would pick a new winner.
	w.LastExecutedAt = res.ExecutedAt
	if err := s.store.SaveDrawExecuted(ctx, c, res.ExecutedAt); err != nil {
		slog.Warn("draws: window persist failed", "cadence", c, "err", err)
	}

	if res.Winner == "" {
		slog.Info("draws: no winner this draw", "cadence", c)
		return nil
	}

	s.payPrize(ctx, w, res)
	return nil
}

// payPrize computes and pays the prize for a drawn winner. Failures here are
// alerts for manual settlement, never a reason to re-run the draw.
func (s *Scheduler) payPrize(ctx context.Context, w *domain.DrawWindow, res domain.DrawResult) {
	tracker, err := s.ledger.GetYieldTracker(ctx)
	if err != nil {
		s.alertPayout(ctx, res, fmt.Sprintf("read tracker: %v", err))
		return
	}
	position, err := s.lending.GetPosition(ctx)
	if err != nil {
		s.alertPayout(ctx, res, fmt.Sprintf("read position: %v", err))
		return
	}

	yield := domain.YieldAvailable(position.CurrentValue, tracker.Principal)
	prize := yield.Share(w.YieldSharePct)

	if prize < s.cfg.DustThreshold {
		// Not an error: the yield stays put and accumulates for a later draw.
		slog.Info("draws: prize below dust threshold, deferred",
			"cadence", res.Cadence, "yield", yield, "prize", prize)
		return
	}

	slog.Info("draws: paying prize",
		"cadence", res.Cadence, "winner", res.Winner,
		"yield", yield, "share_pct", w.YieldSharePct, "prize", prize)

	fund, err := s.lending.Withdraw(ctx, prize)
	if err != nil {
		s.alertPayout(ctx, res, fmt.Sprintf("withdraw %s from lending: %v", prize, err))
		return
	}
	if err := s.ledger.PayPrize(ctx, res.Winner, prize, fund); err != nil {
		s.alertPayout(ctx, res, fmt.Sprintf("pay %s to %s: %v", prize, res.Winner, err))
		return
	}
}

func (s *Scheduler) alertPayout(ctx context.Context, res domain.DrawResult, detail string) {
	msg := fmt.Sprintf("%s draw %s selected winner %s but the payout did not complete: %s",
		res.Cadence, res.TxDigest, res.Winner, detail)
	slog.Error("draws: payout failed, manual settlement required",
		"cadence", res.Cadence, "winner", res.Winner, "err", detail)
	if err := s.alerts.Alert(ctx, "draw payout failed", msg); err != nil {
		slog.Warn("draws: alert delivery failed", "err", err)
	}
}
