// Package money provides precision-safe, ISO-4217-validated monetary
// primitives. All arithmetic inside the kernel flows through Money; no raw
// decimal.Decimal or float64 is allowed to leak across a kernel boundary.
package money

import (
	"strings"

	"github.com/shopspring/decimal"
	"ledgerkernel/kernelerr"
)

// CurrencyInfo describes one ISO-4217 entry: its decimal places and name.
type CurrencyInfo struct {
	Code          string
	DecimalPlaces int32
	Name          string
}

// RoundingTolerance is the maximum rounding tolerance derived from the
// currency's decimal places (never hardcoded).
func (c CurrencyInfo) RoundingTolerance() decimal.Decimal {
	return toleranceFromDecimalPlaces(c.DecimalPlaces)
}

func toleranceFromDecimalPlaces(places int32) decimal.Decimal {
	if places <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.New(1, -places)
}

// Currency is a validated ISO-4217 code (e.g. "USD", "BHD").
type Currency struct {
	code string
}

// defaultDecimalPlaces is used only at lookup sites for a well-formed but
// uncatalogued code (I15 / R16); construction of a Currency still rejects
// unknown codes outright.
const defaultDecimalPlaces = 2

// NewCurrency validates code against the registry and normalizes to
// uppercase. Fails with InvalidCurrency otherwise (I15, R16).
func NewCurrency(code string) (Currency, error) {
	if code == "" {
		return Currency{}, kernelerr.Newf(kernelerr.InvalidCurrency, "empty currency code")
	}
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != 3 {
		return Currency{}, kernelerr.Newf(kernelerr.InvalidCurrency, "currency code must be 3 characters: %q", code)
	}
	if _, ok := registry[normalized]; !ok {
		return Currency{}, kernelerr.Newf(kernelerr.InvalidCurrency, "invalid ISO-4217 currency code: %q", code)
	}
	return Currency{code: normalized}, nil
}

// MustCurrency is NewCurrency but panics on error; reserved for static
// initialization of well-known currencies (e.g. in tests and registries).
func MustCurrency(code string) Currency {
	c, err := NewCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the normalized ISO-4217 code.
func (c Currency) Code() string { return c.code }

func (c Currency) String() string { return c.code }

// IsZero reports whether c is the zero value (never constructed via NewCurrency).
func (c Currency) IsZero() bool { return c.code == "" }

// DecimalPlaces returns the currency's decimal places, derived from the
// registry (never hardcoded).
func (c Currency) DecimalPlaces() int32 {
	if info, ok := registry[c.code]; ok {
		return info.DecimalPlaces
	}
	return defaultDecimalPlaces
}

// RoundingTolerance returns the maximum rounding tolerance for this
// currency, derived from its decimal places (R17).
func (c Currency) RoundingTolerance() decimal.Decimal {
	if info, ok := registry[c.code]; ok {
		return info.RoundingTolerance()
	}
	return toleranceFromDecimalPlaces(defaultDecimalPlaces)
}

// Equal reports whether two currencies share the same code.
func (c Currency) Equal(o Currency) bool { return c.code == o.code }

// IsValidCurrencyCode checks validity without constructing a Currency.
func IsValidCurrencyCode(code string) bool {
	if code == "" {
		return false
	}
	_, ok := registry[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// CurrencyInfoFor returns registry metadata for code, or false if unknown.
func CurrencyInfoFor(code string) (CurrencyInfo, bool) {
	info, ok := registry[strings.ToUpper(strings.TrimSpace(code))]
	return info, ok
}

// AllCurrencyCodes returns every registered ISO-4217 code.
func AllCurrencyCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}
