// Package currency converts between USD, the system of record, and display
// currencies. Accounting code never calls it; only presentation does.
package currency

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const USD = "USD"

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Converter holds static rates expressed as units of currency per 1 USD.
type Converter struct {
	rates map[string]decimal.Decimal
}

func NewConverter(perUSD map[string]float64) (*Converter, error) {
	c := &Converter{rates: map[string]decimal.Decimal{USD: decimal.NewFromInt(1)}}
	for code, rate := range perUSD {
		code = strings.ToUpper(code)
		if rate <= 0 {
			return nil, fmt.Errorf("currency %s: rate must be positive, got %v", code, rate)
		}
		if code == USD {
			continue
		}
		c.rates[code] = decimal.NewFromFloat(rate)
	}
	return c, nil
}

func (c *Converter) rate(code string) (decimal.Decimal, error) {
	if code == "" {
		code = USD
	}
	r, ok := c.rates[strings.ToUpper(code)]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, code)
	}
	return r, nil
}

func (c *Converter) ToUSD(amount float64, code string) (float64, error) {
	r, err := c.rate(code)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromFloat(amount).DivRound(r, 8).InexactFloat64(), nil
}

func (c *Converter) FromUSD(amountUSD float64, code string) (float64, error) {
	r, err := c.rate(code)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromFloat(amountUSD).Mul(r).Round(2).InexactFloat64(), nil
}

func (c *Converter) Supports(code string) bool {
	_, err := c.rate(code)
	return err == nil
}
