package ledger

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"investsim/internal/domain"
	"investsim/internal/lifecycle"
	"investsim/internal/repository"
	"investsim/pkg/money"
)

// repairState checks a freshly loaded state against its transaction history,
// which is the source of truth once it has been read cleanly. Investments
// whose records were lost are rebuilt from their transactions and the balance
// is recomputed as seed plus the sum of all transactions. It reports whether
// anything was changed.
func repairState(ctx context.Context, s *state, ok loadedKeys, seed float64, catalog repository.PlanCatalog, logger *slog.Logger) bool {
	repaired := restoreInvestments(ctx, s, catalog, logger)

	if !ok.transactions {
		if ok.balance && s.Balance != seed {
			logger.ErrorContext(ctx, "Transaction history unreadable, keeping persisted balance",
				slog.Float64("balance", s.Balance))
		}
		return repaired
	}

	amounts := make([]float64, 0, len(s.Transactions)+1)
	amounts = append(amounts, seed)
	for _, tx := range s.Transactions {
		amounts = append(amounts, tx.Amount)
	}
	expected := money.Sum(amounts...)

	switch {
	case ok.balance && math.Abs(s.Balance-expected) <= 1e-6:
		return repaired
	case ok.balance:
		logger.ErrorContext(ctx, "Persisted balance disagrees with transactions, rebuilding",
			slog.Float64("persisted", s.Balance),
			slog.Float64("rebuilt", expected))
	case len(s.Transactions) > 0:
		logger.ErrorContext(ctx, "Persisted balance unreadable, rebuilding from transactions",
			slog.Float64("rebuilt", expected))
	default:
		return repaired
	}
	s.Balance = expected
	return true
}

// restoreInvestments rebuilds every investment that an Investment
// transaction refers to but the investments list lacks. Credited growth and
// completion are recovered from the payouts that name the investment.
func restoreInvestments(ctx context.Context, s *state, catalog repository.PlanCatalog, logger *slog.Logger) bool {
	known := make(map[string]bool, len(s.Investments))
	for _, inv := range s.Investments {
		known[inv.ID] = true
	}

	var restored []*domain.Investment
	for _, tx := range s.Transactions {
		if tx.Type != domain.TypeInvestment || tx.InvestmentID == "" || known[tx.InvestmentID] {
			continue
		}

		plan, err := catalog.Get(tx.PlanID)
		if err != nil {
			plan = domain.Plan{ID: tx.PlanID}
		}
		inv := domain.NewInvestment(plan, -tx.Amount, tx.CreatedAt, lifecycle.LockPeriod)
		inv.ID = tx.InvestmentID
		known[inv.ID] = true
		restored = append(restored, inv)
	}
	if len(restored) == 0 {
		return false
	}

	byID := make(map[string]*domain.Investment, len(restored))
	for _, inv := range restored {
		byID[inv.ID] = inv
	}
	for _, tx := range s.Transactions {
		if tx.Type != domain.TypePayout {
			continue
		}
		if inv, found := byID[tx.InvestmentID]; found {
			completed := tx.CreatedAt
			inv.CreditedEarnings += tx.Amount
			inv.Status = domain.InvestmentCompleted
			inv.CompletedAt = &completed
		}
		for id, credit := range tx.Allocations {
			if inv, found := byID[id]; found {
				inv.CreditedEarnings += credit
			}
		}
	}

	for _, inv := range restored {
		logger.ErrorContext(ctx, "Investment record missing, rebuilt from its transaction",
			slog.String("investment_id", inv.ID),
			slog.String("plan_id", inv.PlanID),
			slog.Float64("amount", inv.Amount),
			slog.String("status", string(inv.Status)))
	}
	s.Investments = append(s.Investments, restored...)
	slices.SortStableFunc(s.Investments, func(a, b *domain.Investment) int {
		return a.StartDate.Compare(b.StartDate)
	})
	return true
}
