// Package strategy is the pure Event → ProposedJournalEntry transformation
// layer. Strategies read only from the event and reference data, perform
// no I/O, and are registered by (event_type, version) in a map-based
// Registry — never dispatched through an if/switch on event_type (R14).
package strategy

import (
	"ledgerkernel/ledger"
)

// ReplayPolicy controls which strategy version replay may fall back to.
type ReplayPolicy string

const (
	// Strict replay always uses the exact original version or fails.
	Strict ReplayPolicy = "strict"
	// Permissive replay falls forward to the latest registered version
	// within [SupportedFromVersion, SupportedToVersion] if the exact
	// original version is no longer registered.
	Permissive ReplayPolicy = "permissive"
)

// Strategy is a pure Event → ProposedJournalEntry function plus the
// lifecycle metadata the Registry validates on registration.
type Strategy interface {
	EventType() string
	Version() int
	ReplayPolicy() ReplayPolicy
	SupportedFromVersion() int
	SupportedToVersion() (version int, ok bool)
	Propose(event ledger.EventEnvelope, ref ledger.ReferenceData) (ledger.ProposedJournalEntry, ledger.ValidationResult, error)
}

// IsCompatibleWithSystemVersion reports whether a strategy's supported
// range covers systemVersion.
func IsCompatibleWithSystemVersion(s Strategy, systemVersion int) bool {
	if systemVersion < s.SupportedFromVersion() {
		return false
	}
	if to, ok := s.SupportedToVersion(); ok && systemVersion > to {
		return false
	}
	return true
}

// Func adapts a plain function plus static metadata into a Strategy,
// avoiding boilerplate wrapper types for every event-type strategy.
type Func struct {
	EventTypeValue             string
	VersionValue                int
	ReplayPolicyValue           ReplayPolicy
	SupportedFromVersionValue   int
	SupportedToVersionValue     *int
	ProposeFunc                 func(event ledger.EventEnvelope, ref ledger.ReferenceData) (ledger.ProposedJournalEntry, ledger.ValidationResult, error)
}

func (f Func) EventType() string           { return f.EventTypeValue }
func (f Func) Version() int                { return f.VersionValue }
func (f Func) ReplayPolicy() ReplayPolicy   { return f.ReplayPolicyValue }
func (f Func) SupportedFromVersion() int   { return f.SupportedFromVersionValue }

func (f Func) SupportedToVersion() (int, bool) {
	if f.SupportedToVersionValue == nil {
		return 0, false
	}
	return *f.SupportedToVersionValue, true
}

func (f Func) Propose(event ledger.EventEnvelope, ref ledger.ReferenceData) (ledger.ProposedJournalEntry, ledger.ValidationResult, error) {
	return f.ProposeFunc(event, ref)
}
