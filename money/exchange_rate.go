package money

import (
	"github.com/shopspring/decimal"
	"ledgerkernel/kernelerr"
)

// ExchangeRate converts Money from one currency to another at a fixed,
// positive rate. The kernel applies rates; it does not choose them (§1
// Non-goals).
type ExchangeRate struct {
	id   string
	from Currency
	to   Currency
	rate decimal.Decimal
}

// NewExchangeRate requires rate > 0.
func NewExchangeRate(id string, from, to Currency, rate decimal.Decimal) (ExchangeRate, error) {
	if !rate.IsPositive() {
		return ExchangeRate{}, kernelerr.Newf(kernelerr.ExchangeRateNotFound, "exchange rate must be positive, got %s", rate)
	}
	return ExchangeRate{id: id, from: from, to: to, rate: rate}, nil
}

func (r ExchangeRate) ID() string         { return r.id }
func (r ExchangeRate) From() Currency     { return r.from }
func (r ExchangeRate) To() Currency       { return r.to }
func (r ExchangeRate) Rate() decimal.Decimal { return r.rate }

// Convert requires money.Currency() == r.From(); returns Money in r.To().
func (r ExchangeRate) Convert(m Money) (Money, error) {
	if !m.Currency().Equal(r.from) {
		return Money{}, kernelerr.Newf(kernelerr.CurrencyMismatch, "exchange rate %s expects source currency %s, got %s", r.id, r.from, m.Currency())
	}
	return Money{amount: m.amount.Mul(r.rate), currency: r.to}, nil
}
