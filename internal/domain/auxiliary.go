package domain

import (
	"time"
)

type PaymentMethodKind string

const (
	PaymentCard PaymentMethodKind = "card"
	PaymentBank PaymentMethodKind = "bank"
)

type PaymentMethod struct {
	ID        string            `json:"id"`
	Kind      PaymentMethodKind `json:"kind"`
	Label     string            `json:"label"`
	Last4     string            `json:"last4,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type NotificationKind string

const (
	NotificationInvestment NotificationKind = "investment"
	NotificationMaturity   NotificationKind = "maturity"
	NotificationPayout     NotificationKind = "payout"
	NotificationDeposit    NotificationKind = "deposit"
	NotificationWithdrawal NotificationKind = "withdrawal"
)

type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

func NewNotification(kind NotificationKind, title, message string, now time.Time) Notification {
	return Notification{
		ID:        NewID(),
		Kind:      kind,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
}

// LedgerEvent is emitted after a ledger mutation commits.
type LedgerEvent struct {
	Kind         NotificationKind
	Title        string
	Message      string
	Amount       float64
	InvestmentID string
	Timestamp    time.Time
}
