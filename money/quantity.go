package money

import (
	"github.com/shopspring/decimal"
	"ledgerkernel/kernelerr"
)

// Quantity is a non-monetary fixed-point measure (e.g. inventory units,
// labor hours) used by WIP/inventory subledger lines where a unit count,
// not a currency, is the natural line value. Same no-float discipline as
// Money, checked by unit string instead of Currency.
type Quantity struct {
	amount decimal.Decimal
	unit   string
}

// QuantityOf constructs a Quantity from a fixed-point decimal and a unit.
func QuantityOf(amount decimal.Decimal, unit string) Quantity {
	return Quantity{amount: amount, unit: unit}
}

func (q Quantity) Amount() decimal.Decimal { return q.amount }
func (q Quantity) Unit() string            { return q.unit }
func (q Quantity) IsZero() bool            { return q.amount.IsZero() }

func (q Quantity) requireSameUnit(o Quantity) error {
	if q.unit != o.unit {
		return kernelerr.Newf(kernelerr.CurrencyMismatch, "unit mismatch: %s vs %s", q.unit, o.unit)
	}
	return nil
}

// Add returns q + o; mismatched units fail with CurrencyMismatch (the
// kernel's single "incompatible unit" code, shared with Money).
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if err := q.requireSameUnit(o); err != nil {
		return Quantity{}, err
	}
	return Quantity{amount: q.amount.Add(o.amount), unit: q.unit}, nil
}

// Sub returns q - o.
func (q Quantity) Sub(o Quantity) (Quantity, error) {
	if err := q.requireSameUnit(o); err != nil {
		return Quantity{}, err
	}
	return Quantity{amount: q.amount.Sub(o.amount), unit: q.unit}, nil
}

func (q Quantity) String() string {
	return q.amount.String() + " " + q.unit
}
