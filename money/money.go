package money

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"ledgerkernel/kernelerr"
)

// Money is an immutable (amount, currency) pair. Decimal is always
// fixed-point; floating point never crosses this boundary.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// Of constructs a Money from a fixed-point decimal and a validated currency.
func Of(amount decimal.Decimal, currency Currency) Money {
	return Money{amount: amount, currency: currency}
}

// Zero returns a zero-valued Money in the given currency.
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// ParseMoney constructs a Money from a decimal string and currency code,
// validating the currency against the registry (I15).
func ParseMoney(amount string, currencyCode string) (Money, error) {
	cur, err := NewCurrency(currencyCode)
	if err != nil {
		return Money{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, kernelerr.Newf(kernelerr.InvalidCurrency, "invalid decimal amount %q: %v", amount, err)
	}
	return Money{amount: d, currency: cur}, nil
}

// Amount returns the underlying fixed-point decimal.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency.
func (m Money) Currency() Currency { return m.currency }

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// Round rounds to the currency's decimal places with half-up rounding,
// returning a new Money (Money.round()).
func (m Money) Round() Money {
	return Money{amount: m.amount.Round(m.currency.DecimalPlaces()), currency: m.currency}
}

func (m Money) requireSameCurrency(o Money) error {
	if !m.currency.Equal(o.currency) {
		return kernelerr.Newf(kernelerr.CurrencyMismatch, "currency mismatch: %s vs %s", m.currency, o.currency)
	}
	return nil
}

// Add returns m + o. Mixing currencies fails with CurrencyMismatch.
func (m Money) Add(o Money) (Money, error) {
	if err := m.requireSameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub returns m - o. Mixing currencies fails with CurrencyMismatch.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.requireSameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// Neg returns unary negation.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	return Money{amount: m.amount.Abs(), currency: m.currency}
}

// MulScalar multiplies by a plain decimal scalar (e.g. a quantity or rate
// adjustment), not another Money (currency-blind by design).
func (m Money) MulScalar(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// DivScalar divides by a plain decimal scalar.
func (m Money) DivScalar(divisor decimal.Decimal) Money {
	return Money{amount: m.amount.Div(divisor), currency: m.currency}
}

// Cmp orders two Money values of the same currency: -1, 0, 1. Mixing
// currencies fails with CurrencyMismatch.
func (m Money) Cmp(o Money) (int, error) {
	if err := m.requireSameCurrency(o); err != nil {
		return 0, err
	}
	return m.amount.Cmp(o.amount), nil
}

func (m Money) String() string {
	return m.amount.StringFixed(m.currency.DecimalPlaces()) + " " + m.currency.Code()
}

// moneyJSON is the wire shape: Decimal as string, never as a JSON number,
// per the canonicalization rule in spec §6.
type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount.String(), Currency: m.currency.Code()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
