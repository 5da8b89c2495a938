// Package reconcile applies elapsed-time growth to the ledger once per
// session start: matured investments are completed and paid out, and growth
// on the rest is credited in one throttled, consolidated payout.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"investsim/internal/clock"
	"investsim/internal/domain"
	"investsim/internal/ledger"
	"investsim/internal/lifecycle"
	"investsim/internal/projection"
	"investsim/internal/repository"
	"investsim/pkg/money"
)

const (
	DefaultMinInterval = time.Hour

	SourceMaturity = "maturity"
	SourceGrowth   = "growth"
)

type Config struct {
	// MinInterval is the minimum time between two consolidated growth
	// payouts, measured from the persisted last-open timestamp.
	MinInterval   time.Duration
	DustThreshold float64
}

func DefaultConfig() Config {
	return Config{
		MinInterval:   DefaultMinInterval,
		DustThreshold: money.DefaultDust,
	}
}

// Recorder receives reconciliation metrics. *metrics.MetricsCollector
// satisfies it.
type Recorder interface {
	PayoutPosted(source string, amount float64)
	ReconciliationFinished(duration time.Duration, success bool)
}

// Sweeper is the part of the ledger the job drives.
type Sweeper interface {
	Sweep(ctx context.Context, fn func(*ledger.Session) error) error
}

// Report summarises one run.
type Report struct {
	Scanned        int     `json:"scanned"`
	Matured        int     `json:"matured"`
	Skipped        int     `json:"skipped"`
	MaturityPayout float64 `json:"maturity_payout"`
	GrowthPayout   float64 `json:"growth_payout"`
	// GrowthCredited is the number of investments that received a share of
	// the consolidated payout.
	GrowthCredited int  `json:"growth_credited"`
	Throttled      bool `json:"throttled"`
}

type Job struct {
	ledger   Sweeper
	catalog  repository.PlanCatalog
	clock    clock.Clock
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
}

func NewJob(
	sweeper Sweeper,
	catalog repository.PlanCatalog,
	clk clock.Clock,
	cfg Config,
	logger *slog.Logger,
	recorder Recorder,
) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.DustThreshold < 0 {
		cfg.DustThreshold = money.DefaultDust
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Job{
		ledger:   sweeper,
		catalog:  catalog,
		clock:    clk,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

type growthShare struct {
	inv   *domain.Investment
	delta float64
}

// Run performs one sweep. On error the ledger is left exactly as it was and
// the error is returned; the next run retries from the same state.
func (j *Job) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	j.logger.InfoContext(ctx, "Starting growth reconciliation",
		slog.Time("as_of", j.clock.Now()))

	var report Report
	err := j.ledger.Sweep(ctx, func(s *ledger.Session) error {
		report = Report{}
		return j.sweep(ctx, s, &report)
	})
	j.recorder.ReconciliationFinished(time.Since(started), err == nil)

	if err != nil {
		j.logger.ErrorContext(ctx, "Growth reconciliation aborted",
			slog.String("error", err.Error()))
		return Report{}, fmt.Errorf("reconciliation failed: %w", err)
	}

	if report.MaturityPayout > 0 {
		j.recorder.PayoutPosted(SourceMaturity, report.MaturityPayout)
	}
	if report.GrowthPayout > 0 {
		j.recorder.PayoutPosted(SourceGrowth, report.GrowthPayout)
	}

	j.logger.InfoContext(ctx, "Growth reconciliation finished",
		slog.Int("scanned", report.Scanned),
		slog.Int("matured", report.Matured),
		slog.Int("skipped", report.Skipped),
		slog.Float64("maturity_payout", report.MaturityPayout),
		slog.Float64("growth_payout", report.GrowthPayout),
		slog.Bool("throttled", report.Throttled))
	return report, nil
}

func (j *Job) sweep(ctx context.Context, s *ledger.Session, report *Report) error {
	now := s.Now()

	var (
		shares []growthShare
		growth float64
	)
	for _, inv := range s.ActiveInvestments() {
		report.Scanned++

		plan, err := j.catalog.Get(inv.PlanID)
		if err != nil {
			report.Skipped++
			j.logger.WarnContext(ctx, "Skipping orphaned investment",
				slog.String("investment_id", inv.ID),
				slog.String("plan_id", inv.PlanID))
			continue
		}
		if reason := malformed(inv); reason != "" {
			report.Skipped++
			j.logger.WarnContext(ctx, "Skipping malformed investment",
				slog.String("investment_id", inv.ID),
				slog.String("reason", reason))
			continue
		}

		rate := projection.DailyRate(plan.AnnualROIPercent)
		at := lifecycle.ValuationTime(inv, plan.DurationDays, now)
		value := projection.CurrentValue(inv.Amount, rate, inv.StartDate, at)
		uncredited := value - inv.Amount - inv.CreditedEarnings

		if projection.DaysRemaining(inv.StartDate, plan.DurationDays, now) == 0 {
			payout := money.RoundCents(uncredited)
			if _, err := s.Complete(inv, payout); err != nil {
				return err
			}
			report.Matured++
			if payout > 0 {
				report.MaturityPayout = money.Sum(report.MaturityPayout, payout)
			}
			j.logger.InfoContext(ctx, "Investment matured",
				slog.String("investment_id", inv.ID),
				slog.String("plan_id", plan.ID),
				slog.Float64("payout", payout))
			continue
		}

		if uncredited > 0 {
			shares = append(shares, growthShare{inv: inv, delta: uncredited})
			growth += uncredited
		}
	}

	if growth > 0 {
		j.creditGrowth(ctx, s, now, shares, growth, report)
	}

	s.SetLastAppOpen(now)
	return nil
}

func (j *Job) creditGrowth(ctx context.Context, s *ledger.Session, now time.Time, shares []growthShare, growth float64, report *Report) {
	if last, ok := s.LastAppOpen(); ok && now.Sub(last) < j.cfg.MinInterval {
		report.Throttled = true
		j.logger.DebugContext(ctx, "Growth payout throttled",
			slog.Time("last_open", last),
			slog.Float64("pending", growth))
		return
	}
	if !money.AboveDust(growth, j.cfg.DustThreshold) {
		j.logger.DebugContext(ctx, "Growth below dust threshold",
			slog.Float64("pending", growth))
		return
	}

	payout := money.RoundCents(growth)

	// Shares are scaled so the credited total matches the rounded payout.
	scale := payout / growth
	allocations := make(map[string]float64, len(shares))
	for _, sh := range shares {
		allocations[sh.inv.ID] = sh.delta * scale
	}
	s.PostPayout(payout, "Investment earnings", allocations)
	report.GrowthPayout = payout
	report.GrowthCredited = len(shares)
}

func malformed(inv *domain.Investment) string {
	switch {
	case inv.StartDate.IsZero():
		return "missing start date"
	case math.IsNaN(inv.Amount) || math.IsInf(inv.Amount, 0):
		return "non-finite amount"
	case inv.Amount <= 0:
		return "non-positive amount"
	}
	return ""
}

type nopRecorder struct{}

func (nopRecorder) PayoutPosted(string, float64)               {}
func (nopRecorder) ReconciliationFinished(time.Duration, bool) {}
