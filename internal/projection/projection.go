package projection

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// DaysElapsed counts whole days since start. Partial days do not count and
// an instant before start counts as zero.
func DaysElapsed(start, now time.Time) int {
	if !now.After(start) {
		return 0
	}
	return int(now.Sub(start) / day)
}

// CurrentValue is principal compounded once per whole elapsed day.
func CurrentValue(principal, dailyRate float64, start, now time.Time) float64 {
	return compound(principal, dailyRate, DaysElapsed(start, now))
}

// ProgressPercent is the share of the plan duration already elapsed, in [0, 100].
func ProgressPercent(start time.Time, durationDays int, now time.Time) float64 {
	if durationDays <= 0 {
		return 100
	}
	pct := float64(DaysElapsed(start, now)) / float64(durationDays) * 100
	return math.Max(0, math.Min(100, pct))
}

func DaysRemaining(start time.Time, durationDays int, now time.Time) int {
	return max(0, durationDays-DaysElapsed(start, now))
}

// Return is a forward-looking "what if" projection over a full plan term.
type Return struct {
	Principal     float64 `json:"principal"`
	Profit        float64 `json:"profit"`
	Total         float64 `json:"total"`
	DailyRate     float64 `json:"daily_rate"`
	DailyEarnings float64 `json:"daily_earnings"`
}

func ExpectedReturn(principal, annualPercent float64, durationDays int) Return {
	rate := DailyRate(annualPercent)
	total := compound(principal, rate, durationDays)
	return Return{
		Principal:     principal,
		Profit:        total - principal,
		Total:         total,
		DailyRate:     rate,
		DailyEarnings: principal * rate,
	}
}
