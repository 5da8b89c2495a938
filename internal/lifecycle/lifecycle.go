// Package lifecycle derives the lock and maturity state of an investment.
//
// Locking is time driven and never stored as truth: IsLocked is recomputed
// from LockedUntil on every read. The only persisted transition is
// Active -> Completed, which the reconciliation sweep performs once an
// investment has no days remaining.
package lifecycle

import (
	"time"

	"investsim/internal/domain"
	"investsim/internal/projection"
)

// LockPeriod is the withdrawal lock applied to every investment. It does not
// depend on the plan's duration: a 7-day plan still locks for 30 days.
const LockPeriod = 30 * domain.Day

type State string

const (
	ActiveLocked   State = "active_locked"
	ActiveUnlocked State = "active_unlocked"
	// Matured is an active investment whose term has run out but which the
	// sweep has not completed yet.
	Matured   State = "matured"
	Completed State = "completed"
	Cancelled State = "cancelled"
)

func LockedUntil(start time.Time) time.Time {
	return start.Add(LockPeriod)
}

func IsLocked(inv *domain.Investment, now time.Time) bool {
	return inv.IsActive() && now.Before(inv.LockedUntil)
}

func IsMatured(inv *domain.Investment, durationDays int, now time.Time) bool {
	return projection.DaysRemaining(inv.StartDate, durationDays, now) == 0
}

func Evaluate(inv *domain.Investment, durationDays int, now time.Time) State {
	switch inv.Status {
	case domain.InvestmentCompleted:
		return Completed
	case domain.InvestmentCancelled:
		return Cancelled
	}

	if IsMatured(inv, durationDays, now) {
		return Matured
	}
	if IsLocked(inv, now) {
		return ActiveLocked
	}
	return ActiveUnlocked
}

// CanComplete guards the Active -> Completed transition so a sweep that runs
// twice never pays the same investment twice.
func CanComplete(inv *domain.Investment) bool {
	return inv.IsActive()
}

// ValuationTime is the instant an investment's value is measured at: now,
// capped at the end of the plan term and at completion. Growth stops at
// maturity even when the sweep that settles it runs days later.
func ValuationTime(inv *domain.Investment, durationDays int, now time.Time) time.Time {
	at := now
	if end := inv.StartDate.Add(time.Duration(durationDays) * domain.Day); end.Before(at) {
		at = end
	}
	if inv.CompletedAt != nil && inv.CompletedAt.Before(at) {
		at = *inv.CompletedAt
	}
	return at
}

// Refresh recomputes the IsLocked cache in place.
func Refresh(inv *domain.Investment, now time.Time) {
	inv.IsLocked = IsLocked(inv, now)
}

// WithdrawalGate blocks withdrawal of the whole balance while any active
// investment is still locked. earliest is the soonest LockedUntil among the
// locked investments and is zero when not blocked.
func WithdrawalGate(investments []*domain.Investment, now time.Time) (blocked bool, earliest time.Time) {
	for _, inv := range investments {
		if !IsLocked(inv, now) {
			continue
		}
		if !blocked || inv.LockedUntil.Before(earliest) {
			earliest = inv.LockedUntil
		}
		blocked = true
	}
	return blocked, earliest
}
