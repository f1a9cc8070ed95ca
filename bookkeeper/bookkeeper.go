// Package bookkeeper dispatches an incoming event to its registered
// strategy and converts any failure, including a panicking strategy, into
// a typed result. It holds no state across invocations.
package bookkeeper

import (
	"fmt"

	"ledgerkernel/kernelerr"
	"ledgerkernel/ledger"
	"ledgerkernel/strategy"
)

// Result is the outcome of Propose: either a proposed entry and the
// strategy version that produced it, or a typed failure.
type Result struct {
	Entry           ledger.ProposedJournalEntry
	StrategyVersion int
	Err             error
}

// Bookkeeper looks up a strategy via its registry and invokes it.
type Bookkeeper struct {
	registry *strategy.Registry
}

// New wraps a strategy registry.
func New(registry *strategy.Registry) *Bookkeeper {
	return &Bookkeeper{registry: registry}
}

// Propose looks up the strategy for event.EventType (at the requested
// version, or the latest if version is nil), invokes it, and recovers any
// panic into a STRATEGY_ERROR result so a misbehaving strategy can never
// crash the posting pipeline.
func (b *Bookkeeper) Propose(event ledger.EventEnvelope, ref ledger.ReferenceData, version *int) (result Result) {
	s, err := b.registry.Get(event.EventType, version)
	if err != nil {
		return Result{Err: err}
	}

	defer func() {
		if r := recover(); r != nil {
			result = Result{Err: kernelerr.Newf(kernelerr.StrategyError, "strategy %s v%d panicked: %v", s.EventType(), s.Version(), r)}
		}
	}()

	entry, validation, proposeErr := s.Propose(event, ref)
	if proposeErr != nil {
		return Result{Err: kernelerr.Newf(kernelerr.StrategyError, "strategy %s v%d failed: %v", s.EventType(), s.Version(), proposeErr)}
	}
	if !validation.Valid {
		return Result{Err: validationErr(s.EventType(), s.Version(), validation)}
	}

	return Result{Entry: entry, StrategyVersion: s.Version()}
}

func validationErr(eventType string, version int, v ledger.ValidationResult) error {
	msg := fmt.Sprintf("strategy %s v%d produced a validation failure", eventType, version)
	if len(v.Errors) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, v.Errors[0].Message)
	}
	e := kernelerr.New(kernelerr.StrategyError, msg)
	if len(v.Errors) > 0 {
		e = e.WithField("validation_code", v.Errors[0].Code)
	}
	return e
}
