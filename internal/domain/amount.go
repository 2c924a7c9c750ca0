package domain

import "fmt"

// Microunit is the number of base units in one whole USDC (6 decimals).
const Microunit = 1_000_000

// Amount is a monetary value in base units of the stable asset.
// All ledger operations take Amounts; floats only appear at display edges.
type Amount uint64

// FromUSD converts a whole-unit value to base units, flooring.
func FromUSD(v float64) Amount {
	if v <= 0 {
		return 0
	}
	return Amount(v * Microunit)
}

// USD returns the whole-unit value for display.
func (a Amount) USD() float64 {
	return float64(a) / Microunit
}

func (a Amount) String() string {
	return fmt.Sprintf("$%.2f", a.USD())
}

// Share returns percent% of a, floored to base units. The percentage is
// converted to basis points first so the result never rounds up.
func (a Amount) Share(percent float64) Amount {
	if percent <= 0 {
		return 0
	}
	bps := uint64(percent * 100)
	return Amount(uint64(a) * bps / 10_000)
}

// SubFloor returns a-b, floored at zero.
func (a Amount) SubFloor(b Amount) Amount {
	if b >= a {
		return 0
	}
	return a - b
}

// MinAmount returns the smaller of two amounts.
func MinAmount(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}
