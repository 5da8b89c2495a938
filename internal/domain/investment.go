package domain

import (
	"time"
)

type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

const CurrencyUSD = "USD"

type Investment struct {
	ID       string `json:"id"`
	PlanID   string `json:"plan_id"`
	PlanName string `json:"plan_name"`
	// Amount is the principal in USD.
	Amount          float64          `json:"amount"`
	Currency        string           `json:"currency"`
	StartDate       time.Time        `json:"start_date"`
	ExpectedEndDate time.Time        `json:"expected_end_date"`
	LockedUntil     time.Time        `json:"locked_until"`
	Status          InvestmentStatus `json:"status"`
	// IsLocked is a read cache. Whoever hands out an Investment recomputes it
	// from LockedUntil first; the persisted value means nothing.
	IsLocked bool `json:"is_locked"`
	// CreditedEarnings is growth already paid into the balance by
	// consolidated reconciliation payouts.
	CreditedEarnings float64    `json:"credited_earnings,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func (inv *Investment) IsActive() bool {
	return inv.Status == InvestmentActive
}

// NewInvestment snapshots the plan name so later catalog edits do not
// rewrite history.
func NewInvestment(plan Plan, amount float64, start time.Time, lockPeriod time.Duration) *Investment {
	return &Investment{
		ID:              NewID(),
		PlanID:          plan.ID,
		PlanName:        plan.Name,
		Amount:          amount,
		Currency:        CurrencyUSD,
		StartDate:       start,
		ExpectedEndDate: start.Add(time.Duration(plan.DurationDays) * Day),
		LockedUntil:     start.Add(lockPeriod),
		Status:          InvestmentActive,
		IsLocked:        lockPeriod > 0,
	}
}
