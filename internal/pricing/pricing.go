// Package pricing turns cart lines into order totals. Everything here is a
// pure function over decimal amounts.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	DefaultFreeShippingThreshold = decimal.NewFromInt(50)
	DefaultFlatShippingRate      = decimal.RequireFromString("5.99")
	DefaultTaxRate               = decimal.RequireFromString("0.21")
)

const DefaultCurrency = "EUR"

// cents is the rounding precision for every monetary result.
const cents = 2

type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShippingRate      decimal.Decimal
	TaxRate               decimal.Decimal
	Currency              string
}

func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		FlatShippingRate:      DefaultFlatShippingRate,
		TaxRate:               DefaultTaxRate,
		Currency:              DefaultCurrency,
	}
}

// ParseRules builds Rules from their textual config form.
func ParseRules(threshold, rate, tax, currency string) (Rules, error) {
	r := DefaultRules()
	var err error
	if threshold != "" {
		if r.FreeShippingThreshold, err = decimal.NewFromString(threshold); err != nil {
			return Rules{}, err
		}
	}
	if rate != "" {
		if r.FlatShippingRate, err = decimal.NewFromString(rate); err != nil {
			return Rules{}, err
		}
	}
	if tax != "" {
		if r.TaxRate, err = decimal.NewFromString(tax); err != nil {
			return Rules{}, err
		}
	}
	if currency != "" {
		r.Currency = currency
	}
	return r, r.Validate()
}

func (r Rules) Validate() error {
	if r.FreeShippingThreshold.IsNegative() || r.FlatShippingRate.IsNegative() || r.TaxRate.IsNegative() {
		return errors.New("pricing: amounts and rates must be non-negative")
	}
	if r.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("pricing: tax rate is a fraction, got > 1")
	}
	if len(r.Currency) != 3 {
		return errors.New("pricing: currency must be an ISO-4217 code")
	}
	return nil
}

type Line struct {
	Price    decimal.Decimal
	Quantity int
}

type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
}

// LineTotal is price × quantity.
func LineTotal(l Line) decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l))
	}
	return sum.Round(cents)
}

func (r Rules) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(r.FreeShippingThreshold) {
		return decimal.Zero
	}
	return r.FlatShippingRate
}

func (r Rules) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(r.TaxRate).Round(cents)
}

// Quote prices a set of lines. An empty set quotes zero everywhere except
// shipping, which callers never reach because checkout rejects empty carts.
func (r Rules) Quote(lines []Line) Totals {
	sub := Subtotal(lines)
	ship := r.Shipping(sub)
	tax := r.Tax(sub)
	return Totals{
		Subtotal:     sub,
		ShippingCost: ship,
		Tax:          tax,
		Total:        sub.Add(ship).Add(tax),
		Currency:     r.Currency,
	}
}
