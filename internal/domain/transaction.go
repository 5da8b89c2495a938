package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string
type TransactionStatus string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeInvestment TransactionType = "investment"
	TypePayout     TransactionType = "payout"

	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Day is the accounting granularity for growth and transaction dates.
const Day = 24 * time.Hour

// Sign is the expected sign of amounts posted with this type: money leaving
// the balance is negative.
func (t TransactionType) Sign() float64 {
	switch t {
	case TypeWithdrawal, TypeInvestment:
		return -1
	default:
		return 1
	}
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeInvestment, TypePayout:
		return true
	}
	return false
}

type Transaction struct {
	ID     string            `json:"id"`
	Type   TransactionType   `json:"type"`
	Amount float64           `json:"amount"`
	Status TransactionStatus `json:"status"`
	// Date is truncated to the day; CreatedAt keeps the full instant for ordering.
	Date         time.Time `json:"date"`
	CreatedAt    time.Time `json:"created_at"`
	Description  string    `json:"description"`
	InvestmentID string    `json:"investment_id,omitempty"`
	PlanID       string    `json:"plan_id,omitempty"`
	// Allocations splits a consolidated growth payout across the
	// investments it credits, keyed by investment ID.
	Allocations map[string]float64 `json:"allocations,omitempty"`
}

// NewTransaction builds a completed transaction dated at now.
func NewTransaction(t TransactionType, amount float64, now time.Time) *Transaction {
	return &Transaction{
		ID:        NewID(),
		Type:      t,
		Amount:    amount,
		Status:    StatusCompleted,
		Date:      StartOfDay(now),
		CreatedAt: now,
	}
}

func (tx *Transaction) WithDescription(desc string) *Transaction {
	tx.Description = desc
	return tx
}

func (tx *Transaction) WithInvestment(id string) *Transaction {
	tx.InvestmentID = id
	return tx
}

func (tx *Transaction) WithPlan(id string) *Transaction {
	tx.PlanID = id
	return tx
}

func (tx *Transaction) WithAllocations(allocations map[string]float64) *Transaction {
	tx.Allocations = allocations
	return tx
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func NewID() string {
	return uuid.NewString()
}
