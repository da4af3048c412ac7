package blackjack

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Money is a currency amount in cents. Bankrolls and wagers never use
// floating point so settlement arithmetic is exact.
type Money int64

// Common amounts
const (
	Cent       Money = 1
	HalfDollar Money = 50
	Dollar     Money = 100
)

// Dollars converts a whole dollar amount to Money
func Dollars(n int64) Money {
	return Money(n) * Dollar
}

// FromFloat converts a decimal dollar amount to Money, rounding to the
// nearest cent.
func FromFloat(f float64) Money {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return Money(math.Round(f * 100))
}

// Float returns the amount in decimal dollars
func (m Money) Float() float64 {
	return float64(m) / 100
}

// String formats as "$12.50" (or "-$3.00")
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}

// Abs returns the absolute amount
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// FloorTo rounds m down to a multiple of step. Non-positive steps return m.
func (m Money) FloorTo(step Money) Money {
	if step <= 0 {
		return m
	}
	if m < 0 {
		return -((-m + step - 1) / step * step)
	}
	return m / step * step
}

// RoundTo rounds m to the nearest multiple of step, halves away from zero.
// Non-positive steps return m.
func (m Money) RoundTo(step Money) Money {
	if step <= 0 {
		return m
	}
	if m < 0 {
		return -(-m).RoundTo(step)
	}
	return (m + step/2) / step * step
}

// MarshalJSON encodes the amount as decimal dollars
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(m.Float(), 'f', 2, 64)), nil
}

// UnmarshalJSON decodes decimal dollars
func (m *Money) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid money value %s: %w", string(data), err)
	}
	*m = FromFloat(f)
	return nil
}

// BlackjackPayout returns the total return on a natural: stake plus 3:2,
// truncated to whole currency units.
func BlackjackPayout(wager Money) Money {
	return (wager * 5 / 2).FloorTo(Dollar)
}

// WinPayout returns stake plus 1:1
func WinPayout(wager Money) Money {
	return wager * 2
}

// InsurancePayout returns stake plus 2:1
func InsurancePayout(stake Money) Money {
	return stake * 3
}
