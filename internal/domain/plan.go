package domain

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPlan = errors.New("invalid plan")

// Plan is a statically configured catalog entry.
type Plan struct {
	ID               string  `json:"id" toml:"id"`
	Name             string  `json:"name" toml:"name"`
	DurationDays     int     `json:"duration_days" toml:"duration_days"`
	AnnualROIPercent float64 `json:"annual_roi_percent" toml:"annual_roi_percent"`
	MinDeposit       float64 `json:"min_deposit" toml:"min_deposit"`
}

// Validate rejects catalog values the rate model cannot handle. Negative
// returns are refused here so that the pure rate functions never see them.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPlan)
	}
	if p.DurationDays <= 0 {
		return fmt.Errorf("%w: plan %s: duration_days must be positive, got %d", ErrInvalidPlan, p.ID, p.DurationDays)
	}
	if math.IsNaN(p.AnnualROIPercent) || math.IsInf(p.AnnualROIPercent, 0) || p.AnnualROIPercent < 0 {
		return fmt.Errorf("%w: plan %s: annual_roi_percent must be a non-negative number, got %v", ErrInvalidPlan, p.ID, p.AnnualROIPercent)
	}
	if math.IsNaN(p.MinDeposit) || math.IsInf(p.MinDeposit, 0) || p.MinDeposit <= 0 {
		return fmt.Errorf("%w: plan %s: min_deposit must be positive, got %v", ErrInvalidPlan, p.ID, p.MinDeposit)
	}
	return nil
}
