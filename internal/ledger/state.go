package ledger

import (
	"context"
	"log/slog"
	"math"
	"time"

	"investsim/internal/domain"
	"investsim/internal/repository"
)

// Persisted keys.
const (
	KeyBalance        = "user_balance"
	KeyTransactions   = "transactions"
	KeyInvestments    = "investments"
	KeyPaymentMethods = "payment_methods"
	KeyNotifications  = "notifications"
	KeyLastAppOpen    = "last_app_open"
)

type state struct {
	Balance        float64
	Transactions   []domain.Transaction
	Investments    []*domain.Investment
	PaymentMethods []domain.PaymentMethod
	Notifications  []domain.Notification
	LastAppOpen    *time.Time
}

func seedState(balance float64) state {
	return state{
		Balance:        balance,
		Transactions:   []domain.Transaction{},
		Investments:    []*domain.Investment{},
		PaymentMethods: []domain.PaymentMethod{},
		Notifications:  []domain.Notification{},
	}
}

// clone deep-copies s. The writer goroutine and staged sweeps both rely on
// never sharing an Investment pointer with the live state.
func (s state) clone() state {
	out := state{
		Balance:        s.Balance,
		Transactions:   append([]domain.Transaction(nil), s.Transactions...),
		Investments:    make([]*domain.Investment, 0, len(s.Investments)),
		PaymentMethods: append([]domain.PaymentMethod(nil), s.PaymentMethods...),
		Notifications:  append([]domain.Notification(nil), s.Notifications...),
	}
	for _, inv := range s.Investments {
		cp := *inv
		if inv.CompletedAt != nil {
			at := *inv.CompletedAt
			cp.CompletedAt = &at
		}
		out.Investments = append(out.Investments, &cp)
	}
	if s.LastAppOpen != nil {
		at := *s.LastAppOpen
		out.LastAppOpen = &at
	}
	return out
}

func (s state) findInvestment(id string) *domain.Investment {
	for _, inv := range s.Investments {
		if inv.ID == id {
			return inv
		}
	}
	return nil
}

// loadedKeys records which keys decoded cleanly on load.
type loadedKeys struct {
	balance      bool
	transactions bool
	investments  bool
}

// loadState reads every key with its own fallback: one unreadable key does
// not discard the others. The result is not trusted until repairState has
// checked it against the transaction history.
func loadState(ctx context.Context, store repository.KeyValueStore, seed float64, logger *slog.Logger) (state, loadedKeys) {
	s := seedState(seed)
	var ok loadedKeys

	balance, balanceOK := repository.LoadJSON(ctx, store, KeyBalance, seed, logger)
	if balanceOK && (math.IsNaN(balance) || math.IsInf(balance, 0)) {
		logger.WarnContext(ctx, "Persisted balance is not finite, using seed balance",
			slog.Float64("seed", seed))
		balance, balanceOK = seed, false
	}
	s.Balance = balance
	ok.balance = balanceOK

	s.Transactions, ok.transactions = repository.LoadJSON(ctx, store, KeyTransactions, s.Transactions, logger)
	s.PaymentMethods, _ = repository.LoadJSON(ctx, store, KeyPaymentMethods, s.PaymentMethods, logger)
	s.Notifications, _ = repository.LoadJSON(ctx, store, KeyNotifications, s.Notifications, logger)

	investments, investmentsOK := repository.LoadJSON(ctx, store, KeyInvestments, s.Investments, logger)
	ok.investments = investmentsOK
	s.Investments = s.Investments[:0]
	for _, inv := range investments {
		if inv == nil {
			continue
		}
		s.Investments = append(s.Investments, inv)
	}

	if at, found := repository.LoadJSON[time.Time](ctx, store, KeyLastAppOpen, time.Time{}, logger); found && !at.IsZero() {
		s.LastAppOpen = &at
	}

	return s, ok
}

func saveState(ctx context.Context, store repository.KeyValueStore, s state) error {
	values := map[string]any{
		KeyBalance:        s.Balance,
		KeyTransactions:   s.Transactions,
		KeyInvestments:    s.Investments,
		KeyPaymentMethods: s.PaymentMethods,
		KeyNotifications:  s.Notifications,
	}
	if s.LastAppOpen != nil {
		values[KeyLastAppOpen] = *s.LastAppOpen
	}
	return repository.SaveAll(ctx, store, values)
}
