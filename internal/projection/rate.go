// Package projection holds the pure money-over-time arithmetic: the rate
// models and the value projections built on them. Nothing here reads the
// wall clock; callers pass "now" explicitly.
package projection

import (
	"math"
)

const daysPerYear = 365

// DailyRate converts a nominal annual return in percent into the daily
// compounding rate that reproduces it over 365 days.
func DailyRate(annualPercent float64) float64 {
	if annualPercent == 0 {
		return 0
	}
	return math.Pow(1+annualPercent/100, 1.0/daysPerYear) - 1
}

func compound(principal, dailyRate float64, days int) float64 {
	if days <= 0 {
		return principal
	}
	return principal * math.Pow(1+dailyRate, float64(days))
}
