package ledger

import (
	"time"
)

// Kind classifies a business failure. Callers switch on it exhaustively.
type Kind string

const (
	KindPlanNotFound        Kind = "plan_not_found"
	KindInvalidAmount       Kind = "invalid_amount"
	KindBelowMinimumDeposit Kind = "below_minimum_deposit"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindWithdrawalLocked    Kind = "withdrawal_locked"
	KindNotFound            Kind = "not_found"
	KindInvalidInput        Kind = "invalid_input"
)

// Error is the only error type returned by ledger operations. A failed
// operation never leaves partial state behind.
type Error struct {
	Kind    Kind
	Message string
	// UnlockAt is set for KindWithdrawalLocked: the earliest instant at
	// which a locked investment releases the gate.
	UnlockAt time.Time
	Err      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the same kind, so errors.Is(err,
// ErrBelowMinimumDeposit) works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

var (
	ErrPlanNotFound        = &Error{Kind: KindPlanNotFound}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrBelowMinimumDeposit = &Error{Kind: KindBelowMinimumDeposit}
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrWithdrawalLocked    = &Error{Kind: KindWithdrawalLocked}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
)

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
