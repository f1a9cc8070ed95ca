// Package reconcile enforces the subledger/GL control-account invariant:
// every subledger balance must agree with its bound GL control account,
// within a per-contract tolerance, on posting and at period close.
package reconcile

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"ledgerkernel/kernelerr"
	"ledgerkernel/money"
)

// SubledgerType is a canonical subledger identifier.
type SubledgerType string

const (
	AP           SubledgerType = "AP"
	AR           SubledgerType = "AR"
	Inventory    SubledgerType = "INVENTORY"
	FixedAssets  SubledgerType = "FIXED_ASSETS"
	Bank         SubledgerType = "BANK"
	Payroll      SubledgerType = "PAYROLL"
	WIP          SubledgerType = "WIP"
	Intercompany SubledgerType = "INTERCOMPANY"
)

// ReconciliationTiming is when reconciliation must occur.
type ReconciliationTiming string

const (
	RealTime  ReconciliationTiming = "real_time"
	Daily     ReconciliationTiming = "daily"
	PeriodEnd ReconciliationTiming = "period_end"
)

// ToleranceType selects how ReconciliationTolerance computes its threshold.
type ToleranceType string

const (
	ToleranceAbsolute   ToleranceType = "absolute"
	TolerancePercentage ToleranceType = "percentage"
	ToleranceNone       ToleranceType = "none"
)

// ControlAccountBinding binds a subledger type to its GL control account.
type ControlAccountBinding struct {
	SubledgerType       SubledgerType
	ControlAccountRole  string
	ControlAccountCode  string
	IsDebitNormal       bool
	Currency            string
}

// ExpectedSign returns the sign of a positive balance for this binding.
func (b ControlAccountBinding) ExpectedSign() int {
	if b.IsDebitNormal {
		return 1
	}
	return -1
}

// ReconciliationTolerance describes how much variance is acceptable before
// a subledger is considered out of balance with its control account.
type ReconciliationTolerance struct {
	ToleranceType  ToleranceType
	AbsoluteAmount decimal.Decimal
	Percentage     decimal.Decimal
	MaxAbsoluteCap *decimal.Decimal
}

// ZeroTolerance requires an exact match.
func ZeroTolerance() ReconciliationTolerance {
	return ReconciliationTolerance{ToleranceType: ToleranceNone}
}

// PenniesTolerance allows a small fixed rounding variance (default 0.01).
func PenniesTolerance(amount decimal.Decimal) ReconciliationTolerance {
	if amount.IsZero() {
		amount = decimal.NewFromFloat(0.01)
	}
	return ReconciliationTolerance{ToleranceType: ToleranceAbsolute, AbsoluteAmount: amount}
}

// PercentTolerance allows variance up to pct percent of the control
// balance, optionally capped at an absolute amount.
func PercentTolerance(pct decimal.Decimal, maxCap *decimal.Decimal) ReconciliationTolerance {
	return ReconciliationTolerance{ToleranceType: TolerancePercentage, Percentage: pct, MaxAbsoluteCap: maxCap}
}

// IsWithinTolerance reports whether variance against balance clears this
// tolerance.
func (t ReconciliationTolerance) IsWithinTolerance(variance, balance decimal.Decimal) bool {
	absVariance := variance.Abs()

	switch t.ToleranceType {
	case ToleranceNone:
		return absVariance.IsZero()
	case ToleranceAbsolute:
		return absVariance.LessThanOrEqual(t.AbsoluteAmount)
	case TolerancePercentage:
		threshold := balance.Abs().Mul(t.Percentage).Div(decimal.NewFromInt(100))
		if t.MaxAbsoluteCap != nil && t.MaxAbsoluteCap.LessThan(threshold) {
			threshold = *t.MaxAbsoluteCap
		}
		return absVariance.LessThanOrEqual(threshold)
	default:
		return false
	}
}

// Contract is the complete control contract for one subledger.
type Contract struct {
	Binding               ControlAccountBinding
	Timing                ReconciliationTiming
	Tolerance             ReconciliationTolerance
	EnforceOnPost         bool
	EnforceOnClose        bool
	AutoCreateAdjustments bool
}

// SubledgerType proxies the binding's subledger type.
func (c Contract) SubledgerType() SubledgerType { return c.Binding.SubledgerType }

// ControlAccountRole proxies the binding's control account role.
func (c Contract) ControlAccountRole() string { return c.Binding.ControlAccountRole }

// Result is the outcome of comparing a subledger balance to its control
// account balance as of a given date.
type Result struct {
	SubledgerType         SubledgerType
	AsOfDate              time.Time
	SubledgerBalance      money.Money
	ControlAccountBalance money.Money
	Variance              money.Money
	IsReconciled          bool
	IsWithinTolerance     bool
	ToleranceUsed         ReconciliationTolerance
	CheckedAt             time.Time
	EntriesChecked        int
}

// IsBalanced reports whether variance is exactly zero.
func (r Result) IsBalanced() bool { return r.Variance.IsZero() }

// Violation is a breach of a control contract: out-of-balance after a
// posting, or an unreconciled subledger blocking period close.
type Violation struct {
	SubledgerType SubledgerType
	Contract      Contract
	Result        Result
	ViolationType string // "out_of_balance", "period_close_blocked", "tolerance_warning"
	Message       string
	Severity      string // "error" or "warning"
	Blocking      bool
}

// Reconciler compares subledger balances against their bound control
// accounts. It holds no state; every call is a pure function of its inputs
// plus structured logging of the outcome.
type Reconciler struct{}

// NewReconciler returns a ready-to-use Reconciler.
func NewReconciler() *Reconciler { return &Reconciler{} }

// Reconcile computes the variance between a subledger balance and its
// control account balance, and classifies it against the contract's
// tolerance. Convention: positive variance means subledger > control.
func (r *Reconciler) Reconcile(contract Contract, subledgerBalance, controlAccountBalance money.Money, asOfDate, checkedAt time.Time, entriesChecked int) (Result, error) {
	if !subledgerBalance.Currency().Equal(controlAccountBalance.Currency()) {
		return Result{}, kernelerr.Newf(kernelerr.CurrencyMismatch,
			"subledger/control currency mismatch: subledger=%s, control=%s",
			subledgerBalance.Currency(), controlAccountBalance.Currency())
	}

	variance, err := subledgerBalance.Sub(controlAccountBalance)
	if err != nil {
		return Result{}, err
	}

	isWithin := contract.Tolerance.IsWithinTolerance(variance.Amount(), controlAccountBalance.Amount())

	result := Result{
		SubledgerType:         contract.SubledgerType(),
		AsOfDate:              asOfDate,
		SubledgerBalance:      subledgerBalance,
		ControlAccountBalance: controlAccountBalance,
		Variance:              variance,
		IsReconciled:          variance.IsZero(),
		IsWithinTolerance:     isWithin,
		ToleranceUsed:         contract.Tolerance,
		CheckedAt:             checkedAt,
		EntriesChecked:        entriesChecked,
	}

	switch {
	case result.IsReconciled:
		log.Info().Str("subledger_type", string(contract.SubledgerType())).Time("as_of_date", asOfDate).
			Str("status", "reconciled").Int("entries_checked", entriesChecked).Msg("subledger_validated")
	case isWithin:
		log.Info().Str("subledger_type", string(contract.SubledgerType())).Time("as_of_date", asOfDate).
			Str("status", "within_tolerance").Str("variance", variance.Amount().String()).
			Int("entries_checked", entriesChecked).Msg("subledger_validated")
	default:
		log.Warn().Str("subledger_type", string(contract.SubledgerType())).Time("as_of_date", asOfDate).
			Str("status", "out_of_balance").Str("variance", variance.Amount().String()).
			Str("subledger_balance", subledgerBalance.Amount().String()).
			Str("control_balance", controlAccountBalance.Amount().String()).
			Int("entries_checked", entriesChecked).Msg("subledger_violation")
	}

	return result, nil
}

// ValidatePost checks that a posting leaves the subledger within tolerance
// of its control account. Returns nil if the contract doesn't enforce on
// post, or if the post-state is within tolerance.
func (r *Reconciler) ValidatePost(contract Contract, subledgerBalanceAfter, controlBalanceAfter money.Money, asOfDate time.Time, checkedAt time.Time) ([]Violation, error) {
	if !contract.EnforceOnPost {
		return nil, nil
	}

	result, err := r.Reconcile(contract, subledgerBalanceAfter, controlBalanceAfter, asOfDate, checkedAt, 0)
	if err != nil {
		return nil, err
	}

	if result.IsWithinTolerance {
		return nil, nil
	}

	log.Warn().Str("subledger_type", string(contract.SubledgerType())).Time("as_of_date", asOfDate).
		Str("variance", result.Variance.Amount().String()).Str("violation_type", "out_of_balance").
		Msg("subledger_post_violation")

	return []Violation{{
		SubledgerType: contract.SubledgerType(),
		Contract:      contract,
		Result:        result,
		ViolationType: "out_of_balance",
		Message: "posting would cause " + string(contract.SubledgerType()) +
			" to be out of balance with control account; variance " + result.Variance.String(),
		Severity: "error",
		Blocking: true,
	}}, nil
}

// ValidatePeriodClose checks that a subledger is reconciled (or within
// tolerance, with a warning) before its period may close.
func (r *Reconciler) ValidatePeriodClose(contract Contract, subledgerBalance, controlAccountBalance money.Money, periodEndDate, checkedAt time.Time) ([]Violation, error) {
	if !contract.EnforceOnClose {
		return nil, nil
	}

	result, err := r.Reconcile(contract, subledgerBalance, controlAccountBalance, periodEndDate, checkedAt, 0)
	if err != nil {
		return nil, err
	}

	switch {
	case result.IsReconciled:
		return nil, nil
	case !result.IsWithinTolerance:
		log.Warn().Str("subledger_type", string(contract.SubledgerType())).Time("period_end_date", periodEndDate).
			Str("variance", result.Variance.Amount().String()).Str("violation_type", "period_close_blocked").
			Msg("subledger_period_close_blocked")
		return []Violation{{
			SubledgerType: contract.SubledgerType(),
			Contract:      contract,
			Result:        result,
			ViolationType: "period_close_blocked",
			Message: "cannot close period: " + string(contract.SubledgerType()) +
				" is not reconciled with control account; variance " + result.Variance.String(),
			Severity: "error",
			Blocking: true,
		}}, nil
	default:
		log.Info().Str("subledger_type", string(contract.SubledgerType())).Time("period_end_date", periodEndDate).
			Str("variance", result.Variance.Amount().String()).Msg("subledger_period_close_tolerance_warning")
		return []Violation{{
			SubledgerType: contract.SubledgerType(),
			Contract:      contract,
			Result:        result,
			ViolationType: "tolerance_warning",
			Message: string(contract.SubledgerType()) + " has variance of " +
				result.Variance.String() + " (within tolerance)",
			Severity: "warning",
			Blocking: false,
		}}, nil
	}
}
