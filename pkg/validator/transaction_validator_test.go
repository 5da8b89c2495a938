package validator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountValidator_ValidAmount(t *testing.T) {
	v := NewAmountValidator(0)

	assert.NoError(t, v.ValidateAmount(0.01))
	assert.NoError(t, v.ValidateAmount(500))
}

func TestAmountValidator_InvalidAmount(t *testing.T) {
	v := NewAmountValidator(0)

	for _, amount := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.ErrorIs(t, v.ValidateAmount(amount), ErrInvalidAmount, "amount %v", amount)
	}
}

func TestAmountValidator_Minimum(t *testing.T) {
	v := NewAmountValidator(0)

	err := v.ValidateMinimum(50, 500)

	require.ErrorIs(t, err, ErrBelowMinimum)
	assert.Contains(t, err.Error(), "$500.00")
	assert.NoError(t, v.ValidateMinimum(500, 500))
}

func TestAmountValidator_DepositCeiling(t *testing.T) {
	assert.ErrorIs(t, NewAmountValidator(50000).ValidateDeposit(60000), ErrAboveMaximum)
	assert.NoError(t, NewAmountValidator(0).ValidateDeposit(60000))
	assert.ErrorIs(t, NewAmountValidator(50000).ValidateDeposit(-5), ErrInvalidAmount)
}

func TestAmountValidator_NormalizeCurrency(t *testing.T) {
	v := NewAmountValidator(0)

	code, err := v.NormalizeCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", code)

	_, err = v.NormalizeCurrency("US")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}
