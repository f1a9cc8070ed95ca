// Package kernelerr defines the kernel's typed result-code error taxonomy.
//
// Every expected failure inside the kernel is returned as a *Error value,
// never raised through panic/recover for control flow. Callers branch on
// Code, not on the message string.
package kernelerr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable, UPPERCASE_SNAKE_CASE result code.
type Code string

const (
	// Ingestion
	EventNotFound           Code = "EVENT_NOT_FOUND"
	EventAlreadyExists      Code = "EVENT_ALREADY_EXISTS"
	PayloadMismatch         Code = "PAYLOAD_MISMATCH"
	UnsupportedSchemaVersion Code = "UNSUPPORTED_SCHEMA_VERSION"

	// Posting
	UnbalancedEntry           Code = "UNBALANCED_ENTRY"
	UnbalancedIntent          Code = "UNBALANCED_INTENT"
	InvalidAccount            Code = "INVALID_ACCOUNT"
	MissingDimension          Code = "MISSING_DIMENSION"
	InvalidDimensionValue     Code = "INVALID_DIMENSION_VALUE"
	PostingRuleNotFound       Code = "POSTING_RULE_NOT_FOUND"
	NoRoundingAccount         Code = "NO_ROUNDING_ACCOUNT"
	MultipleRoundingLines     Code = "MULTIPLE_ROUNDING_LINES"
	RoundingAmountExceeded    Code = "ROUNDING_AMOUNT_EXCEEDED"
	MissingReferenceSnapshot Code = "MISSING_REFERENCE_SNAPSHOT"
	StaleReferenceSnapshot   Code = "STALE_REFERENCE_SNAPSHOT"

	// Period
	ClosedPeriod         Code = "CLOSED_PERIOD"
	PeriodNotFound       Code = "PERIOD_NOT_FOUND"
	PeriodAlreadyClosed  Code = "PERIOD_ALREADY_CLOSED"
	PeriodOverlap        Code = "PERIOD_OVERLAP"
	PeriodImmutable      Code = "PERIOD_IMMUTABLE"
	AdjustmentsNotAllowed Code = "ADJUSTMENTS_NOT_ALLOWED"

	// Account
	AccountNotFound         Code = "ACCOUNT_NOT_FOUND"
	AccountInactive         Code = "ACCOUNT_INACTIVE"
	AccountReferenced       Code = "ACCOUNT_REFERENCED"
	RoundingAccountNotFound Code = "ROUNDING_ACCOUNT_NOT_FOUND"

	// Currency / FX
	InvalidCurrency      Code = "INVALID_CURRENCY"
	CurrencyMismatch     Code = "CURRENCY_MISMATCH"
	ExchangeRateNotFound Code = "EXCHANGE_RATE_NOT_FOUND"

	// Strategy
	StrategyNotFound        Code = "STRATEGY_NOT_FOUND"
	StrategyVersionNotFound Code = "STRATEGY_VERSION_NOT_FOUND"
	StrategyLifecycleError  Code = "STRATEGY_LIFECYCLE_ERROR"
	StrategyIncompatible    Code = "STRATEGY_INCOMPATIBLE"
	StrategyError           Code = "STRATEGY_ERROR"

	// Role
	RoleResolutionFailed Code = "ROLE_RESOLUTION_FAILED"

	// Audit
	AuditChainBroken Code = "AUDIT_CHAIN_BROKEN"

	// Reversal
	EntryNotPosted      Code = "ENTRY_NOT_POSTED"
	EntryAlreadyReversed Code = "ENTRY_ALREADY_REVERSED"
	CrossLedgerReversal Code = "CROSS_LEDGER_REVERSAL"

	// Subledger
	SubledgerReconciliationError Code = "SUBLEDGER_RECONCILIATION_ERROR"
	UnknownSubledgerType         Code = "UNKNOWN_SUBLEDGER_TYPE"

	// Concurrency
	ConcurrentInsert Code = "CONCURRENT_INSERT"
	OptimisticLock   Code = "OPTIMISTIC_LOCK"

	// Immutability
	ImmutabilityViolation       Code = "IMMUTABILITY_VIOLATION"
	RoundingInvariantViolation  Code = "ROUNDING_INVARIANT_VIOLATION"
	RoundingThresholdViolation  Code = "ROUNDING_THRESHOLD_VIOLATION"

	// Configuration
	ConfigError Code = "CONFIG_ERROR"
)

// Error is the kernel's single error type. Fields is optional structured
// context (unresolved roles, variance amounts, etc.) for audit logging;
// it is never parsed by callers, only the Code is.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a kernel error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a kernel error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithField returns a copy of e with an added context field.
func (e *Error) WithField(key string, value any) *Error {
	out := &Error{Code: e.Code, Message: e.Message, Fields: make(map[string]any, len(e.Fields)+1)}
	for k, v := range e.Fields {
		out.Fields[k] = v
	}
	out.Fields[key] = value
	return out
}

// Is lets errors.Is match on Code, ignoring Message/Fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
