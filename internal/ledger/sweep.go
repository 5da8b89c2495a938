package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"investsim/internal/domain"
	"investsim/internal/lifecycle"
)

var ErrNotActive = errors.New("investment is not active")

// Session is a staged view of the ledger handed to a sweep. Changes made
// through it become visible only if the sweep function returns nil.
type Session struct {
	staged *state
	now    time.Time
	posted []domain.Transaction
	events []domain.LedgerEvent
	apply  func(*state, domain.Transaction)
}

func (s *Session) Now() time.Time {
	return s.now
}

// ActiveInvestments returns the staged active investments. Mutating them
// through Complete or PostPayout is the only supported change.
func (s *Session) ActiveInvestments() []*domain.Investment {
	var result []*domain.Investment
	for _, inv := range s.staged.Investments {
		if inv.IsActive() {
			result = append(result, inv)
		}
	}
	return result
}

func (s *Session) LastAppOpen() (time.Time, bool) {
	if s.staged.LastAppOpen == nil {
		return time.Time{}, false
	}
	return *s.staged.LastAppOpen, true
}

func (s *Session) SetLastAppOpen(t time.Time) {
	s.staged.LastAppOpen = &t
}

// Complete moves inv to Completed and, when payout is positive, posts it
// as a Payout. It refuses anything that is not active, so completing twice
// cannot pay twice.
func (s *Session) Complete(inv *domain.Investment, payout float64) (*domain.Transaction, error) {
	if !lifecycle.CanComplete(inv) {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotActive, inv.ID, inv.Status)
	}

	at := s.now
	inv.Status = domain.InvestmentCompleted
	inv.CompletedAt = &at
	inv.IsLocked = lifecycle.IsLocked(inv, s.now)

	title := "Investment matured"
	message := fmt.Sprintf("Your %s investment of $%.2f has matured.", inv.PlanName, inv.Amount)

	var tx *domain.Transaction
	if payout > 0 {
		inv.CreditedEarnings += payout
		tx = s.post(payout, fmt.Sprintf("Profit from %s investment", inv.PlanName), inv.ID, nil)
		message = fmt.Sprintf("Your %s investment of $%.2f has matured. $%.2f profit was credited.",
			inv.PlanName, inv.Amount, payout)
	}

	s.staged.Notifications = append(s.staged.Notifications,
		domain.NewNotification(domain.NotificationMaturity, title, message, s.now))
	s.events = append(s.events, domain.LedgerEvent{
		Kind:         domain.NotificationMaturity,
		Title:        title,
		Message:      message,
		Amount:       payout,
		InvestmentID: inv.ID,
		Timestamp:    s.now,
	})
	return tx, nil
}

// PostPayout posts one consolidated growth payout and credits each
// allocation to its investment. The allocations are kept on the
// transaction so credited growth can be rebuilt from history.
func (s *Session) PostPayout(amount float64, description string, allocations map[string]float64) *domain.Transaction {
	for id, credit := range allocations {
		if inv := s.staged.findInvestment(id); inv != nil {
			inv.CreditedEarnings += credit
		}
	}
	tx := s.post(amount, description, "", allocations)
	title := "Earnings credited"
	s.staged.Notifications = append(s.staged.Notifications,
		domain.NewNotification(domain.NotificationPayout, title, description, s.now))
	s.events = append(s.events, domain.LedgerEvent{
		Kind:      domain.NotificationPayout,
		Title:     title,
		Message:   description,
		Amount:    amount,
		Timestamp: s.now,
	})
	return tx
}

func (s *Session) post(amount float64, description, investmentID string, allocations map[string]float64) *domain.Transaction {
	tx := domain.NewTransaction(domain.TypePayout, amount, s.now).
		WithDescription(description).
		WithInvestment(investmentID).
		WithAllocations(allocations)
	s.apply(s.staged, *tx)
	s.posted = append(s.posted, *tx)
	return tx
}

// Sweep runs fn against a staged copy of the ledger while holding the
// ledger lock, so no other mutation can interleave. The staged changes are
// committed only if fn returns nil; an error or a panic discards them and
// the ledger keeps its last good state.
func (l *Ledger) Sweep(ctx context.Context, fn func(*Session) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := l.state.clone()
	sess := &Session{
		staged: &staged,
		now:    l.clock.Now(),
		apply:  l.apply,
	}

	if err := runSweep(fn, sess); err != nil {
		l.logger.ErrorContext(ctx, "Sweep aborted, ledger left unchanged",
			slog.String("error", err.Error()))
		return err
	}

	l.state = staged
	l.commit(ctx, sess.posted, sess.events)

	l.logger.InfoContext(ctx, "Sweep committed",
		slog.Int("transactions_posted", len(sess.posted)),
		slog.Float64("balance", l.state.Balance))
	return nil
}

func runSweep(fn func(*Session) error, sess *Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()
	return fn(sess)
}
