// Package money does cent-exact arithmetic on USD float amounts.
package money

import (
	"github.com/shopspring/decimal"
)

// DefaultDust is the smallest payout worth posting.
const DefaultDust = 0.01

func RoundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Sum adds amounts without accumulating binary rounding error.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	return total.InexactFloat64()
}

// AboveDust reports whether amount, rounded to cents, exceeds threshold.
func AboveDust(amount, threshold float64) bool {
	return decimal.NewFromFloat(amount).Round(2).GreaterThan(decimal.NewFromFloat(threshold))
}
