package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverter(t *testing.T) {
	c, err := NewConverter(map[string]float64{"eur": 0.5, "NGN": 1500})
	require.NoError(t, err)

	usd, err := c.ToUSD(100, "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 200, usd, 1e-9)

	eur, err := c.FromUSD(200, "eur")
	require.NoError(t, err)
	assert.InDelta(t, 100, eur, 1e-9)

	same, err := c.ToUSD(42.5, "")
	require.NoError(t, err)
	assert.Equal(t, 42.5, same)

	_, err = c.ToUSD(1, "JPY")
	assert.ErrorIs(t, err, ErrUnsupportedCurrency)
	assert.False(t, c.Supports("JPY"))
	assert.True(t, c.Supports("NGN"))
}

func TestConverter_RejectsBadRates(t *testing.T) {
	_, err := NewConverter(map[string]float64{"EUR": 0})
	assert.Error(t, err)
}
