package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investsim/internal/domain"
)

var start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newInvestment(t *testing.T, durationDays int, at time.Time) *domain.Investment {
	t.Helper()
	plan := domain.Plan{ID: "p", Name: "Plan", DurationDays: durationDays, AnnualROIPercent: 10, MinDeposit: 1}
	return domain.NewInvestment(plan, 100, at, LockPeriod)
}

func TestLockedUntil_IndependentOfDuration(t *testing.T) {
	short := newInvestment(t, 7, start)
	long := newInvestment(t, 365, start)

	assert.Equal(t, start.Add(30*24*time.Hour), short.LockedUntil)
	assert.Equal(t, short.LockedUntil, long.LockedUntil)
	assert.Equal(t, LockedUntil(start), short.LockedUntil)
}

func TestEvaluate_Transitions(t *testing.T) {
	inv := newInvestment(t, 60, start)

	assert.Equal(t, ActiveLocked, Evaluate(inv, 60, start))
	assert.Equal(t, ActiveLocked, Evaluate(inv, 60, start.Add(29*domain.Day)))
	assert.Equal(t, ActiveUnlocked, Evaluate(inv, 60, start.Add(30*domain.Day)))
	assert.Equal(t, Matured, Evaluate(inv, 60, start.Add(60*domain.Day)))

	inv.Status = domain.InvestmentCompleted
	assert.Equal(t, Completed, Evaluate(inv, 60, start.Add(60*domain.Day)))
	assert.False(t, CanComplete(inv))
}

func TestEvaluate_ShortPlanMaturesWhileLocked(t *testing.T) {
	inv := newInvestment(t, 7, start)
	now := start.Add(8 * domain.Day)

	assert.Equal(t, Matured, Evaluate(inv, 7, now))
	assert.True(t, IsLocked(inv, now))
}

func TestIsLocked_Idempotent(t *testing.T) {
	inv := newInvestment(t, 90, start)
	now := start.Add(10 * domain.Day)

	for i := 0; i < 3; i++ {
		assert.True(t, IsLocked(inv, now))
		assert.Equal(t, ActiveLocked, Evaluate(inv, 90, now))
	}
}

func TestRefresh_IgnoresStaleCache(t *testing.T) {
	inv := newInvestment(t, 90, start)
	inv.IsLocked = true

	Refresh(inv, start.Add(31*domain.Day))

	assert.False(t, inv.IsLocked)
}

func TestWithdrawalGate(t *testing.T) {
	old := newInvestment(t, 90, start.Add(-40*domain.Day))
	fresh := newInvestment(t, 90, start.Add(-5*domain.Day))
	fresher := newInvestment(t, 90, start.Add(-2*domain.Day))

	blocked, earliest := WithdrawalGate([]*domain.Investment{old, fresher, fresh}, start)

	require.True(t, blocked)
	assert.Equal(t, fresh.LockedUntil, earliest)

	blocked, earliest = WithdrawalGate([]*domain.Investment{old}, start)
	assert.False(t, blocked)
	assert.True(t, earliest.IsZero())
}

func TestWithdrawalGate_IgnoresCompleted(t *testing.T) {
	inv := newInvestment(t, 7, start)
	inv.Status = domain.InvestmentCompleted

	blocked, _ := WithdrawalGate([]*domain.Investment{inv}, start.Add(time.Hour))

	assert.False(t, blocked)
}

func TestDescribe(t *testing.T) {
	plan := domain.Plan{ID: "p2", Name: "Growth", DurationDays: 30, AnnualROIPercent: 12, MinDeposit: 500}
	inv := domain.NewInvestment(plan, 500, start, LockPeriod)

	v := Describe(*inv, plan, start.Add(15*domain.Day+time.Hour))

	assert.Equal(t, ActiveLocked, v.State)
	assert.Equal(t, 15, v.DaysElapsed)
	assert.Equal(t, 15, v.DaysRemaining)
	assert.InDelta(t, 50, v.Progress, 1e-9)
	assert.Greater(t, v.Profit, 0.0)
	assert.InDelta(t, v.CurrentValue-500, v.Profit, 1e-9)
}

func TestDescribe_ExcludesCreditedGrowth(t *testing.T) {
	plan := domain.Plan{ID: "p2", Name: "Growth", DurationDays: 30, AnnualROIPercent: 12, MinDeposit: 500}
	inv := domain.NewInvestment(plan, 500, start, LockPeriod)
	inv.CreditedEarnings = 1.55

	v := Describe(*inv, plan, start.Add(10*domain.Day))

	assert.Equal(t, 1.55, v.Credited)
	assert.InDelta(t, v.CurrentValue-500-1.55, v.Profit, 1e-9)
}

func TestValuationTime_StopsAtEndOfTerm(t *testing.T) {
	plan := domain.Plan{ID: "p1", Name: "Starter", DurationDays: 7, AnnualROIPercent: 8, MinDeposit: 100}
	inv := domain.NewInvestment(plan, 100, start, LockPeriod)
	end := start.Add(7 * domain.Day)

	assert.Equal(t, start.Add(3*domain.Day), ValuationTime(inv, plan.DurationDays, start.Add(3*domain.Day)))
	assert.Equal(t, end, ValuationTime(inv, plan.DurationDays, start.Add(40*domain.Day)))

	late := Describe(*inv, plan, start.Add(40*domain.Day))
	onTime := Describe(*inv, plan, end)
	assert.Equal(t, onTime.CurrentValue, late.CurrentValue)

	completed := start.Add(2 * domain.Day)
	inv.CompletedAt = &completed
	assert.Equal(t, completed, ValuationTime(inv, plan.DurationDays, start.Add(40*domain.Day)))
}
