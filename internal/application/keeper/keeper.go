// Package keeper is the top-level runtime: it ticks each component on its
// own interval, serializes per-component execution, and coordinates
// shutdown. Components never see each other's in-memory state; all
// coordination goes through the ledger, which keeps every tick idempotent
// and restart-safe.
package keeper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slyncl12/luckyvault/internal/application/draws"
)

// Component is one independently-ticking keeper duty.
type Component struct {
	Name     string
	Interval time.Duration
	Tick     func(ctx context.Context) error

	inFlight atomic.Bool
}

// Keeper composes the polling components and the draw scheduler.
type Keeper struct {
	components []*Component
	draws      *draws.Scheduler
}

// New creates the runtime.
func New(drawScheduler *draws.Scheduler, components ...*Component) *Keeper {
	return &Keeper{components: components, draws: drawScheduler}
}

// Run ticks until the context is canceled, then stops cleanly: tickers halt,
// the cron drains, and any in-flight ledger submission either completes or
// fails; nothing is left half-submitted because submissions are atomic.
func (k *Keeper) Run(ctx context.Context) error {
	if err := k.draws.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, c := range k.components {
		wg.Add(1)
		go func(c *Component) {
			defer wg.Done()
			k.loop(ctx, c)
		}(c)
	}

	<-ctx.Done()
	wg.Wait()
	k.draws.Stop()
	slog.Info("keeper: stopped cleanly")
	return nil
}

// RunOnce ticks every component once and checks all draw cadences. Used by
// one-shot mode for operating and debugging.
func (k *Keeper) RunOnce(ctx context.Context) {
	for _, c := range k.components {
		k.tick(ctx, c)
	}
	k.draws.CheckAll(ctx)
}

func (k *Keeper) loop(ctx context.Context, c *Component) {
	slog.Info("keeper: component started", "component", c.Name, "interval", c.Interval)

	k.tick(ctx, c)

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper: component stopped", "component", c.Name)
			return
		case <-ticker.C:
			k.tick(ctx, c)
		}
	}
}

// tick runs one component tick behind its in-flight guard: two concurrent
// executions of the same component could double-count the same liquidity
// delta, so a tick that is still running wins and the new one is skipped.
func (k *Keeper) tick(ctx context.Context, c *Component) {
	if !c.inFlight.CompareAndSwap(false, true) {
		slog.Warn("keeper: previous tick still running, skipping", "component", c.Name)
		return
	}
	defer c.inFlight.Store(false)

	start := time.Now()
	if err := c.Tick(ctx); err != nil {
		// Per-tick errors are terminal for this tick only; the next tick
		// recomputes everything from current ledger state.
		slog.Error("keeper: tick failed", "component", c.Name, "err", err)
		return
	}
	slog.Debug("keeper: tick complete",
		"component", c.Name, "duration", time.Since(start).Round(time.Millisecond))
}
