// Package orchestrator is the single point of dependency injection for the
// posting pipeline. Every kernel service is constructed exactly once, in
// dependency order, against a shared store and clock; no kernel service
// constructs another one internally. Callers receive an Orchestrator and
// reach every kernel service through it rather than constructing services
// themselves.
package orchestrator

import (
	"time"

	"github.com/google/uuid"
	"ledgerkernel/audit"
	"ledgerkernel/clock"
	"ledgerkernel/config"
	"ledgerkernel/intent"
	"ledgerkernel/journal"
	"ledgerkernel/kernelerr"
	"ledgerkernel/period"
	"ledgerkernel/sequence"
	"ledgerkernel/store"
	"ledgerkernel/subledger"
	"ledgerkernel/subledger/reconcile"
	"ledgerkernel/subledgerperiod"
)

// Orchestrator wires every kernel service against one shared *store.Store
// and clock.Clock. It holds no business logic of its own beyond
// construction order and the thin bridging methods below.
type Orchestrator struct {
	DB           *store.Store
	Clock        clock.Clock
	RoleResolver *intent.RoleResolver

	Sequence        *sequence.Service
	Audit           *audit.Log
	Period          *period.Service
	SubledgerEngine *subledger.Engine
	Registry        *reconcile.Registry
	Journal         *journal.Writer
	SubledgerPeriod *subledgerperiod.Service
}

// New constructs every kernel service exactly once, in dependency order:
// sequence has no kernel dependencies; audit depends on sequence; period
// depends only on the store; the subledger engine is stateless to construct;
// the journal writer depends on the role resolver, sequence, audit, and
// (if pack carries subledger contracts) the control registry; the
// subledger period service depends on the journal writer and the engine.
//
// registry may be nil when pack carries no subledger contracts — the
// journal writer then skips G9 enforcement entirely and SubledgerPeriod
// closes every period without reconciliation.
func New(db *store.Store, pack config.CompiledPolicyPack, roleResolver *intent.RoleResolver, clk clock.Clock) (*Orchestrator, error) {
	if clk == nil {
		clk = clock.System{}
	}

	var registry *reconcile.Registry
	var subledgerEngine *subledger.Engine
	if len(pack.SubledgerContracts) > 0 {
		var err error
		registry, err = config.BuildSubledgerRegistry(pack, roleResolver)
		if err != nil {
			return nil, err
		}
		subledgerEngine = subledger.NewEngine()
	}

	seq := sequence.NewService(db)
	auditLog := audit.NewLog(db, seq)
	periodSvc := period.NewService(db)
	journalWriter := journal.NewWriter(db, roleResolver, seq, auditLog, clk, registry, subledgerEngine)

	o := &Orchestrator{
		DB:              db,
		Clock:           clk,
		RoleResolver:    roleResolver,
		Sequence:        seq,
		Audit:           auditLog,
		Period:          periodSvc,
		SubledgerEngine: subledgerEngine,
		Registry:        registry,
		Journal:         journalWriter,
	}

	if registry != nil {
		o.SubledgerPeriod = subledgerperiod.NewService(db, clk, registry, roleResolver, subledgerEngine, journalWriter)
	}

	return o, nil
}

// NewFromPack loads a CompiledPolicyPack from YAML at path, derives a
// RoleResolver from its role bindings, and builds an Orchestrator from
// both — the single production entry point: one call wires policy,
// role binding, and every kernel service together from a config file.
func NewFromPack(db *store.Store, path string, clk clock.Clock) (*Orchestrator, error) {
	pack, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	roleResolver := config.BuildRoleResolver(pack)
	return New(db, pack, roleResolver, clk)
}

// Post enforces the period lock (I3) before delegating to Journal.Write:
// an accounting intent whose effective date falls inside a closed fiscal
// period is rejected with ClosedPeriod unless isAdjustment is set and
// that period's AllowsAdjustments flag is true. journal.Writer itself
// never consults the period service -- the original leaves this gate to
// the caller ("effective_date must fall in an open fiscal period,
// enforced by caller") -- so Post is the one place in this workspace the
// gate actually runs before a write reaches the journal.
func (o *Orchestrator) Post(ai intent.AccountingIntent, actorID uuid.UUID, eventType string, isAdjustment bool) (journal.WriteResult, error) {
	if _, err := o.Period.CheckPostable(ai.EffectiveDate, isAdjustment); err != nil {
		code, _ := kernelerr.CodeOf(err)
		return journal.WriteResult{Status: journal.StatusValidationFailed, ErrorCode: code, ErrorMessage: err.Error()}, nil
	}
	return o.Journal.Write(ai, actorID, eventType)
}

// PostSubledgerEntry links draft (not yet posted to the engine) to the
// journal entry journalResult recorded for ledgerID, and posts it to the
// subledger engine. draft's entity, source document, and amount fields are
// the caller's responsibility to populate correctly — building the right
// subledger entry for a given business event is module-adapter logic
// (AP/AR/etc.) that sits above the kernel. This method is the bridge: it
// is the only place a caller needs to reach into the kernel's
// SubledgerEngine, and it keeps the kernel itself free of any import of
// engine-layer code.
//
// Returns kernelerr.SubledgerReconciliationError if no journal entry was
// written for ledgerID in journalResult (the GL posting must exist before
// its subledger entries can be linked to it).
func (o *Orchestrator) PostSubledgerEntry(draft subledger.Entry, ledgerID string, journalResult journal.WriteResult, actorID uuid.UUID, postedAt time.Time) (subledger.Entry, error) {
	if o.SubledgerEngine == nil {
		return subledger.Entry{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "no subledger engine configured: policy pack carries no subledger contracts")
	}
	var glEntryID uuid.UUID
	found := false
	for _, written := range journalResult.Entries {
		if written.LedgerID == ledgerID {
			glEntryID = written.EntryID
			found = true
			break
		}
	}
	if !found {
		return subledger.Entry{}, kernelerr.Newf(kernelerr.SubledgerReconciliationError,
			"no journal entry written for ledger %q; cannot link subledger entry", ledgerID)
	}
	return o.SubledgerEngine.Post(draft, glEntryID, actorID, postedAt)
}

// MakeReversalWriter returns a callback suitable for a correction engine:
// given an original entry ID, it writes the mechanical reversal and
// returns the new entry's ID. actorID and sourceEventID are fixed for
// every call the returned closure makes.
func (o *Orchestrator) MakeReversalWriter(actorID, sourceEventID uuid.UUID) func(originalEntryID uuid.UUID, effectiveDate time.Time, reason string) (uuid.UUID, error) {
	return func(originalEntryID uuid.UUID, effectiveDate time.Time, reason string) (uuid.UUID, error) {
		entry, found, err := o.Journal.GetEntry(originalEntryID)
		if err != nil {
			return uuid.UUID{}, err
		}
		if !found {
			return uuid.UUID{}, kernelerr.Newf(kernelerr.EntryNotPosted, "original entry %s not found", originalEntryID)
		}
		reversed, err := o.Journal.WriteReversal(entry.ID, sourceEventID, actorID, effectiveDate, reason, "correction.reversed", entry.LedgerID)
		if err != nil {
			return uuid.UUID{}, err
		}
		return reversed.ID, nil
	}
}
