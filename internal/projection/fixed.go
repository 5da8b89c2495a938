package projection

// DefaultFixedDailyRate is 0.05479% per day.
const DefaultFixedDailyRate = 0.0005479

// FixedRateTable is the legacy return scheme: one constant daily rate and a
// per-plan day count that replaces the plan's own duration. It is data, and
// it is kept apart from the percent-based model on purpose.
type FixedRateTable struct {
	DailyRate float64        `json:"daily_rate" toml:"daily_rate"`
	Days      map[string]int `json:"days" toml:"days"`
}

func DefaultFixedRateTable() FixedRateTable {
	return FixedRateTable{
		DailyRate: DefaultFixedDailyRate,
		Days: map[string]int{
			"p1": 90,
			"p2": 180,
			"p3": 365,
		},
	}
}

type FixedReturns struct {
	PlanID        string  `json:"plan_id"`
	Days          int     `json:"days"`
	DailyRate     float64 `json:"daily_rate"`
	DailyEarnings float64 `json:"daily_earnings"`
	TotalGrowth   float64 `json:"total_growth"`
	FinalValue    float64 `json:"final_value"`
}

// FixedDailyReturns projects principal under the fixed rate for the plan's
// override day count. ok is false when the plan has no override.
func (t FixedRateTable) FixedDailyReturns(planID string, principal float64) (FixedReturns, bool) {
	days, ok := t.Days[planID]
	if !ok {
		return FixedReturns{}, false
	}

	final := compound(principal, t.DailyRate, days)
	return FixedReturns{
		PlanID:        planID,
		Days:          days,
		DailyRate:     t.DailyRate,
		DailyEarnings: principal * t.DailyRate,
		TotalGrowth:   final - principal,
		FinalValue:    final,
	}, true
}
