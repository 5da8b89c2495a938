package validator

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrBelowMinimum    = errors.New("amount below minimum")
	ErrAboveMaximum    = errors.New("amount above maximum")
	ErrInvalidCurrency = errors.New("invalid currency")
)

type AmountValidator struct {
	currencyRegex *regexp.Regexp
	maxDeposit    float64
}

// NewAmountValidator builds a validator. maxDeposit <= 0 disables the
// deposit ceiling.
func NewAmountValidator(maxDeposit float64) *AmountValidator {
	return &AmountValidator{
		currencyRegex: regexp.MustCompile(`^[A-Z]{3}$`),
		maxDeposit:    maxDeposit,
	}
}

// ValidateAmount accepts finite, strictly positive amounts.
func (v *AmountValidator) ValidateAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrInvalidAmount)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

func (v *AmountValidator) ValidateMinimum(amount, minimum float64) error {
	if amount < minimum {
		return fmt.Errorf("%w: minimum deposit is $%.2f", ErrBelowMinimum, minimum)
	}
	return nil
}

func (v *AmountValidator) ValidateDeposit(amount float64) error {
	if err := v.ValidateAmount(amount); err != nil {
		return err
	}
	if v.maxDeposit > 0 && amount > v.maxDeposit {
		return fmt.Errorf("%w: deposit exceeds maximum of $%.2f", ErrAboveMaximum, v.maxDeposit)
	}
	return nil
}

// NormalizeCurrency upper-cases code and checks it looks like an ISO 4217 code.
func (v *AmountValidator) NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !v.currencyRegex.MatchString(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return code, nil
}
