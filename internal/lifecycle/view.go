package lifecycle

import (
	"time"

	"investsim/internal/domain"
	"investsim/internal/projection"
)

// View is the read model of an investment at a given instant. It is
// recomputed on every read and never persisted.
type View struct {
	Investment    domain.Investment `json:"investment"`
	State         State             `json:"state"`
	CurrentValue  float64           `json:"current_value"`
	Profit        float64           `json:"profit"`
	Credited      float64           `json:"credited_earnings"`
	Progress      float64           `json:"progress_percent"`
	DaysElapsed   int               `json:"days_elapsed"`
	DaysRemaining int               `json:"days_remaining"`
	DailyRate     float64           `json:"daily_rate"`
}

// Describe projects inv under its plan. Value stops growing at the end of the
// term and completed investments are frozen at their completion instant.
// Profit excludes growth already credited to the balance, so balance plus
// profit never counts the same growth twice.
func Describe(inv domain.Investment, plan domain.Plan, now time.Time) View {
	at := ValuationTime(&inv, plan.DurationDays, now)

	rate := projection.DailyRate(plan.AnnualROIPercent)
	value := projection.CurrentValue(inv.Amount, rate, inv.StartDate, at)
	Refresh(&inv, now)

	return View{
		Investment:    inv,
		State:         Evaluate(&inv, plan.DurationDays, now),
		CurrentValue:  value,
		Profit:        value - inv.Amount - inv.CreditedEarnings,
		Credited:      inv.CreditedEarnings,
		Progress:      projection.ProgressPercent(inv.StartDate, plan.DurationDays, at),
		DaysElapsed:   projection.DaysElapsed(inv.StartDate, at),
		DaysRemaining: projection.DaysRemaining(inv.StartDate, plan.DurationDays, at),
		DailyRate:     rate,
	}
}
