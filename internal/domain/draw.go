package domain

import (
	"fmt"
	"time"
)

// Cadence identifies one independent draw schedule.
type Cadence int

const (
	CadenceHourly Cadence = iota
	CadenceDaily
	CadenceWeekly
	CadenceMonthly
)

// Cadences lists every schedule the keeper operates, in firing-frequency order.
var Cadences = []Cadence{CadenceHourly, CadenceDaily, CadenceWeekly, CadenceMonthly}

func (c Cadence) String() string {
	switch c {
	case CadenceHourly:
		return "hourly"
	case CadenceDaily:
		return "daily"
	case CadenceWeekly:
		return "weekly"
	case CadenceMonthly:
		return "monthly"
	default:
		return fmt.Sprintf("cadence(%d)", int(c))
	}
}

// Period is the minimum time that must elapse between two executions of the
// cadence. Monthly uses 28 days so a draw fired on Jan 1 is not blocked on
// Feb 1.
func (c Cadence) Period() time.Duration {
	switch c {
	case CadenceHourly:
		return time.Hour
	case CadenceDaily:
		return 24 * time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	case CadenceMonthly:
		return 28 * 24 * time.Hour
	default:
		return 0
	}
}

// CronSpec is the boundary schedule in robfig/cron six-field syntax (UTC).
func (c Cadence) CronSpec() string {
	switch c {
	case CadenceHourly:
		return "0 0 * * * *" // top of every hour
	case CadenceDaily:
		return "0 0 0 * * *" // midnight
	case CadenceWeekly:
		return "0 0 0 * * 0" // Sunday midnight
	case CadenceMonthly:
		return "0 0 0 1 * *" // 1st of the month, midnight
	default:
		return ""
	}
}

// AtBoundary reports whether t sits on the cadence's calendar boundary (UTC).
func (c Cadence) AtBoundary(t time.Time) bool {
	t = t.UTC()
	switch c {
	case CadenceHourly:
		return t.Minute() == 0
	case CadenceDaily:
		return t.Hour() == 0 && t.Minute() == 0
	case CadenceWeekly:
		return t.Weekday() == time.Sunday && t.Hour() == 0 && t.Minute() == 0
	case CadenceMonthly:
		return t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0
	default:
		return false
	}
}

// DrawWindow tracks the execution state of one cadence. LastExecutedAt
// strictly increases; at most one execution happens per cadence period.
type DrawWindow struct {
	Cadence        Cadence
	LastExecutedAt time.Time
	YieldSharePct  float64 // share of available yield paid as the prize
}

// Due applies the dual gate: the wall clock must sit on the cadence boundary
// AND at least one full period must have elapsed since the last execution.
// The boundary check stops missed-tick catch-up fires; the elapsed check
// stops clock drift from double-firing within the same boundary.
func (w DrawWindow) Due(now time.Time) bool {
	if !w.Cadence.AtBoundary(now) {
		return false
	}
	return now.Sub(w.LastExecutedAt) >= w.Cadence.Period()
}

// DrawResult is the parsed outcome of an on-chain draw execution. An empty
// Winner is a valid outcome (no eligible participants), not an error.
type DrawResult struct {
	Cadence    Cadence
	Winner     string
	TxDigest   string
	ExecutedAt time.Time
}
