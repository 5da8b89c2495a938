package ledger

import (
	"context"
	"fmt"
	"strings"

	"investsim/internal/domain"
	"investsim/internal/repository"
)

func (l *Ledger) Notifications() []domain.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Notification(nil), l.state.Notifications...)
}

// MarkNotificationsAsRead flags every notification as read and reports how
// many changed.
func (l *Ledger) MarkNotificationsAsRead(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := 0
	for i := range l.state.Notifications {
		if !l.state.Notifications[i].Read {
			l.state.Notifications[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		l.commit(ctx, nil, nil)
	}
	return changed
}

func (l *Ledger) PaymentMethods() []domain.PaymentMethod {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.PaymentMethod(nil), l.state.PaymentMethods...)
}

func (l *Ledger) AddPaymentMethod(ctx context.Context, pm domain.PaymentMethod) (domain.PaymentMethod, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pm.Label = strings.TrimSpace(pm.Label)
	if pm.Label == "" {
		return domain.PaymentMethod{}, newError(KindInvalidInput, "Payment method label is required", nil)
	}
	if pm.Kind == "" {
		pm.Kind = domain.PaymentCard
	}
	if len(pm.Last4) > 4 {
		pm.Last4 = pm.Last4[len(pm.Last4)-4:]
	}
	pm.ID = domain.NewID()
	pm.CreatedAt = l.clock.Now()

	l.state.PaymentMethods = append(l.state.PaymentMethods, pm)
	l.commit(ctx, nil, nil)
	return pm, nil
}

func (l *Ledger) DeletePaymentMethod(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, pm := range l.state.PaymentMethods {
		if pm.ID == id {
			l.state.PaymentMethods = append(l.state.PaymentMethods[:i:i], l.state.PaymentMethods[i+1:]...)
			l.commit(ctx, nil, nil)
			return nil
		}
	}
	return newError(KindNotFound, fmt.Sprintf("Payment method %s not found", id), repository.ErrNotFound)
}
