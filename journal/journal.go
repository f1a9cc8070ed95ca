// Package journal is the kernel's posting engine: it turns an
// intent.AccountingIntent into balanced, role-resolved, sequence-numbered
// JournalEntry rows, one per ledger the intent targets, and provides the
// mechanical reversal operation. This is the algorithmic
// core of the kernel.
package journal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"ledgerkernel/audit"
	"ledgerkernel/clock"
	"ledgerkernel/immutability"
	"ledgerkernel/intent"
	"ledgerkernel/kernelerr"
	"ledgerkernel/ledger"
	"ledgerkernel/money"
	"ledgerkernel/sequence"
	"ledgerkernel/store"
	"ledgerkernel/subledger"
	"ledgerkernel/subledger/reconcile"
)

// streamEntries is the sequence stream journal entries allocate seq from.
const streamEntries = "JOURNAL_ENTRY"

// WriteStatus is the outcome of a Write call.
type WriteStatus string

const (
	StatusWritten             WriteStatus = "written"
	StatusAlreadyExists       WriteStatus = "already_exists"
	StatusRoleResolutionFailed WriteStatus = "role_resolution_failed"
	StatusValidationFailed    WriteStatus = "validation_failed"
	StatusFailed              WriteStatus = "failed"
)

// WrittenEntry identifies one successfully written (or already-existing)
// journal entry.
type WrittenEntry struct {
	EntryID        uuid.UUID
	LedgerID       string
	Seq            int64
	IdempotencyKey string
}

// WriteResult is the outcome of a Write call. Exactly one of (Entries) or
// (ErrorCode, ErrorMessage) is meaningful, selected by Status.
type WriteResult struct {
	Status          WriteStatus
	Entries         []WrittenEntry
	ErrorCode       kernelerr.Code
	ErrorMessage    string
	UnresolvedRoles []string
}

// IsSuccess reports whether the write succeeded, including the idempotent
// already-exists case.
func (r WriteResult) IsSuccess() bool {
	return r.Status == StatusWritten || r.Status == StatusAlreadyExists
}

func writtenResult(entries []WrittenEntry) WriteResult {
	return WriteResult{Status: StatusWritten, Entries: entries}
}

func alreadyExistsResult(entries []WrittenEntry) WriteResult {
	return WriteResult{Status: StatusAlreadyExists, Entries: entries}
}

func roleResolutionFailedResult(roles []string, message string) WriteResult {
	return WriteResult{Status: StatusRoleResolutionFailed, ErrorCode: kernelerr.RoleResolutionFailed, ErrorMessage: message, UnresolvedRoles: roles}
}

func validationFailedResult(code kernelerr.Code, message string) WriteResult {
	return WriteResult{Status: StatusValidationFailed, ErrorCode: code, ErrorMessage: message}
}

func failedResult(code kernelerr.Code, message string) WriteResult {
	return WriteResult{Status: StatusFailed, ErrorCode: code, ErrorMessage: message}
}

// Entry is a persisted journal entry for one ledger.
type Entry struct {
	ID                      uuid.UUID
	SourceEventID           uuid.UUID
	SourceEventType         string
	OccurredAt              time.Time
	EffectiveDate           time.Time
	ActorID                 uuid.UUID
	Status                  ledger.EntryStatus
	IdempotencyKey          string
	LedgerID                string
	ProfileID               string
	EconEventID             uuid.UUID
	PostingRuleVersion      int
	Description             string
	CreatedByID             uuid.UUID
	COAVersion              int
	DimensionSchemaVersion  int
	RoundingPolicyVersion   int
	CurrencyRegistryVersion int
	Seq                     int64
	PostedAt                time.Time
	ReversalOfID            *uuid.UUID
	ReversalReason          string
}

// ImmutableDiff reports the first protected field next would change, or ""
// if next leaves every field compared below unchanged; other fields (such
// as ActorID or PostedAt) are not compared. A journal entry is append-only from the
// moment it exists in the store: finalizePosting writes it exactly once
// per ID, so any later write to the same key is, by construction, an
// attempt to alter history.
func (e Entry) ImmutableDiff(next Entry) string {
	switch {
	case e.Status != next.Status:
		return "status"
	case !e.EffectiveDate.Equal(next.EffectiveDate):
		return "effective_date"
	case e.LedgerID != next.LedgerID:
		return "ledger_id"
	case e.Description != next.Description:
		return "description"
	case e.Seq != next.Seq:
		return "seq"
	case e.IdempotencyKey != next.IdempotencyKey:
		return "idempotency_key"
	case e.EconEventID != next.EconEventID:
		return "econ_event_id"
	case !reversalOfEqual(e.ReversalOfID, next.ReversalOfID):
		return "reversal_of_id"
	default:
		return ""
	}
}

func reversalOfEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Line is a persisted journal line.
type Line struct {
	JournalEntryID uuid.UUID
	AccountID      uuid.UUID
	AccountCode    string
	AccountRole    string
	Side           ledger.LineSide
	Money          money.Money
	Dimensions     map[string]string
	Memo           string
	IsRounding     bool
	LineSeq        int
	ExchangeRateID *uuid.UUID
	CreatedByID    uuid.UUID
}

// ImmutableDiff reports the first field next would change on a line
// that has already been written. Lines never change account, side, or
// amount once posted -- the only legitimate way to correct a line is a
// reversing entry, never an in-place edit.
func (l Line) ImmutableDiff(next Line) string {
	amountEqual := l.Money.Currency() == next.Money.Currency() && l.Money.Amount().Equal(next.Money.Amount())
	switch {
	case l.AccountID != next.AccountID:
		return "account_id"
	case l.Side != next.Side:
		return "side"
	case !amountEqual:
		return "money"
	case l.IsRounding != next.IsRounding:
		return "is_rounding"
	default:
		return ""
	}
}

// Writer is the multi-ledger journal posting service.
type Writer struct {
	db           *store.Store
	roleResolver *intent.RoleResolver
	seq          *sequence.Service
	auditLog     *audit.Log
	clk          clock.Clock

	subledgerRegistry *reconcile.Registry
	subledgerEngine   *subledger.Engine
	reconciler        *reconcile.Reconciler
}

// NewWriter returns a Writer. subledgerRegistry and subledgerEngine are
// optional (nil disables G9 subledger control enforcement); everything
// else is required.
func NewWriter(db *store.Store, roleResolver *intent.RoleResolver, seq *sequence.Service, auditLog *audit.Log, clk clock.Clock, subledgerRegistry *reconcile.Registry, subledgerEngine *subledger.Engine) *Writer {
	return &Writer{
		db:                db,
		roleResolver:      roleResolver,
		seq:               seq,
		auditLog:          auditLog,
		clk:               clk,
		subledgerRegistry: subledgerRegistry,
		subledgerEngine:   subledgerEngine,
		reconciler:        reconcile.NewReconciler(),
	}
}

func entryKey(id uuid.UUID) string { return id.String() }

func lineKey(entryID uuid.UUID, lineSeq int) string { return fmt.Sprintf("%s:%04d", entryID, lineSeq) }

// GetEntry loads a journal entry by primary key.
func (w *Writer) GetEntry(id uuid.UUID) (Entry, bool, error) {
	return store.Get[Entry](w.db, store.BucketJournalEntries, entryKey(id))
}

// GetLines returns every line of entryID in line-seq order.
func (w *Writer) GetLines(entryID uuid.UUID) ([]Line, error) {
	var lines []Line
	err := store.ForEach(w.db, store.BucketJournalLines, func(key string, l Line) error {
		if l.JournalEntryID == entryID {
			lines = append(lines, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortLinesBySeq(lines)
	return lines, nil
}

func sortLinesBySeq(lines []Line) {
	for i := 1; i < len(lines); i++ {
		for j := i; j > 0 && lines[j].LineSeq < lines[j-1].LineSeq; j-- {
			lines[j], lines[j-1] = lines[j-1], lines[j]
		}
	}
}

func (w *Writer) findByIdempotencyKey(key string) (Entry, bool, error) {
	var found Entry
	hit := false
	err := store.ForEach(w.db, store.BucketJournalEntries, func(_ string, e Entry) error {
		if e.IdempotencyKey == key {
			found = e
			hit = true
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	return found, hit, nil
}

// Write posts intent to every ledger it targets. The balance check and role
// resolution run for every ledger intent before anything is persisted, so
// a failure there writes nothing. Persistence is not atomic across ledgers:
// each ledger's lines and entry are written by separate store calls, one
// ledger after another, and a failure while writing a later ledger, or a
// blocking subledger control violation found after all ledgers are
// written, returns a failed result while the entries already written stay
// in the store. Re-invocation with the same intent is idempotent (R3),
// keyed on (econ_event_id, ledger_id, profile_version).
func (w *Writer) Write(ai intent.AccountingIntent, actorID uuid.UUID, eventType string) (WriteResult, error) {
	t0 := w.clk.Now()
	log.Info().Str("source_event_id", ai.SourceEventID.String()).Int("ledger_count", len(ai.LedgerIntents)).
		Msg("journal_write_started")

	// R4: debits == credits per currency, per ledger intent.
	for _, li := range ai.LedgerIntents {
		for _, currency := range li.Currencies() {
			if !li.IsBalanced(currency) {
				imbalance, _ := li.TotalDebits(currency).Sub(li.TotalCredits(currency))
				log.Warn().Str("ledger_id", li.LedgerID).Str("currency", currency).
					Str("imbalance", imbalance.Amount().String()).Msg("unbalanced_intent")
				return validationFailedResult(kernelerr.UnbalancedIntent,
					fmt.Sprintf("ledger %q is unbalanced for %s: imbalance = %s", li.LedgerID, currency, imbalance.Amount())), nil
			}
		}
	}

	// L1: every account role resolves to exactly one COA account.
	type resolved struct {
		ledgerIntent intent.LedgerIntent
		lines        []intent.ResolvedIntentLine
	}
	var allResolved []resolved
	for _, li := range ai.LedgerIntents {
		result := intent.ResolveIntentLines(w.roleResolver, li, li.LedgerID, ai.Snapshot.COAVersion)
		if !result.Success {
			log.Warn().Strs("unresolved_roles", result.UnresolvedRoles).Msg("role_resolution_failed")
			return roleResolutionFailedResult(result.UnresolvedRoles, result.ErrorMessage), nil
		}
		allResolved = append(allResolved, resolved{ledgerIntent: li, lines: result.ResolvedLines})
	}

	// R3: idempotency key uniqueness check per ledger.
	var existingEntries []WrittenEntry
	var newIntents []resolved
	for _, r := range allResolved {
		key := ai.IdempotencyKey(r.ledgerIntent.LedgerID)
		existing, found, err := w.findByIdempotencyKey(key)
		if err != nil {
			return WriteResult{}, err
		}
		if found && (existing.Status == ledger.StatusPosted || existing.Status == ledger.StatusReversed) {
			existingEntries = append(existingEntries, WrittenEntry{
				EntryID: existing.ID, LedgerID: r.ledgerIntent.LedgerID, Seq: existing.Seq, IdempotencyKey: key,
			})
			continue
		}
		newIntents = append(newIntents, r)
	}

	if len(newIntents) == 0 {
		log.Info().Msg("journal_write_idempotent")
		return alreadyExistsResult(existingEntries), nil
	}

	writtenEntries := append([]WrittenEntry(nil), existingEntries...)
	for _, r := range newIntents {
		entry, err := w.createEntry(ai, r.ledgerIntent, r.lines, actorID, eventType)
		if err != nil {
			if kerr, ok := err.(*kernelerr.Error); ok {
				return failedResult(kerr.Code, kerr.Message), nil
			}
			return WriteResult{}, err
		}
		writtenEntries = append(writtenEntries, WrittenEntry{
			EntryID: entry.ID, LedgerID: r.ledgerIntent.LedgerID, Seq: entry.Seq, IdempotencyKey: entry.IdempotencyKey,
		})
	}

	// G9: subledger control reconciliation, post-time enforcement.
	if w.subledgerRegistry != nil && w.subledgerEngine != nil {
		if violations := w.validateSubledgerControls(ai); len(violations) > 0 {
			return failedResult(kernelerr.SubledgerReconciliationError, violations[0].Message), nil
		}
	}

	durationMs := w.clk.Now().Sub(t0).Milliseconds()
	log.Info().Int("entry_count", len(writtenEntries)).Str("source_event_id", ai.SourceEventID.String()).
		Int64("duration_ms", durationMs).Msg("journal_write_completed")

	return writtenResult(writtenEntries), nil
}

func (w *Writer) createEntry(ai intent.AccountingIntent, li intent.LedgerIntent, lines []intent.ResolvedIntentLine, actorID uuid.UUID, eventType string) (Entry, error) {
	now := w.clk.Now()
	idempotencyKey := ai.IdempotencyKey(li.LedgerID)

	entry := Entry{
		ID:                      uuid.New(),
		SourceEventID:           ai.SourceEventID,
		SourceEventType:         eventType,
		OccurredAt:              firstNonZero(ai.CreatedAt, now),
		EffectiveDate:           ai.EffectiveDate,
		ActorID:                 actorID,
		Status:                  ledger.StatusDraft,
		IdempotencyKey:          idempotencyKey,
		LedgerID:                li.LedgerID,
		ProfileID:               ai.ProfileID,
		EconEventID:             ai.EconEventID,
		PostingRuleVersion:      ai.ProfileVersion,
		Description:             ai.Description,
		CreatedByID:             actorID,
		COAVersion:              ai.Snapshot.COAVersion,
		DimensionSchemaVersion:  ai.Snapshot.DimensionSchemaVersion,
		RoundingPolicyVersion:   ai.Snapshot.RoundingPolicyVersion,
		CurrencyRegistryVersion: ai.Snapshot.CurrencyRegistryVersion,
	}

	if err := w.validateRoundingInvariants(entry.ID, lines); err != nil {
		return Entry{}, err
	}

	for _, line := range lines {
		jl := Line{
			JournalEntryID: entry.ID,
			AccountID:      line.AccountID,
			AccountCode:    line.AccountCode,
			AccountRole:    line.AccountRole,
			Side:           ledger.LineSide(line.Side),
			Money:          line.Money,
			Dimensions:     line.Dimensions,
			Memo:           line.Memo,
			IsRounding:     line.IsRounding,
			LineSeq:        line.LineSeq,
			CreatedByID:    actorID,
		}
		if err := immutability.GuardedPut(w.db, store.BucketJournalLines, lineKey(entry.ID, jl.LineSeq), jl); err != nil {
			return Entry{}, fmt.Errorf("persist journal line: %w", err)
		}
		log.Info().Str("entry_id", entry.ID.String()).Int("line_seq", jl.LineSeq).Str("role", jl.AccountRole).
			Str("account_code", jl.AccountCode).Str("side", string(jl.Side)).Str("amount", jl.Money.Amount().String()).
			Bool("is_rounding", jl.IsRounding).Msg("line_written")
	}

	if err := w.finalizePosting(&entry); err != nil {
		return Entry{}, err
	}

	if w.auditLog != nil {
		_, err := w.auditLog.Record("JournalEntry", entry.ID.String(), "posted", map[string]any{
			"ledger_id": li.LedgerID, "seq": entry.Seq, "idempotency_key": idempotencyKey,
		}, actorID.String(), now)
		if err != nil {
			return Entry{}, err
		}
	}

	return entry, nil
}

func firstNonZero(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

// validateRoundingInvariants enforces R5 (at most one rounding line) and
// the rounding threshold (R22): a rounding line may absorb at most
// max(0.01, 0.01 * non-rounding-line-count) per currency.
func (w *Writer) validateRoundingInvariants(entryID uuid.UUID, lines []intent.ResolvedIntentLine) error {
	var roundingLines, nonRoundingLines []intent.ResolvedIntentLine
	for _, l := range lines {
		if l.IsRounding {
			roundingLines = append(roundingLines, l)
		} else {
			nonRoundingLines = append(nonRoundingLines, l)
		}
	}
	if len(roundingLines) > 1 {
		return kernelerr.Newf(kernelerr.MultipleRoundingLines, "entry %s has %d rounding lines, at most one allowed", entryID, len(roundingLines))
	}
	if len(roundingLines) == 1 {
		rl := roundingLines[0]
		maxAllowed := decimal.NewFromFloat(0.01).Mul(decimal.NewFromInt(int64(len(nonRoundingLines))))
		floor := decimal.NewFromFloat(0.01)
		if maxAllowed.LessThan(floor) {
			maxAllowed = floor
		}
		if rl.Money.Amount().GreaterThan(maxAllowed) {
			return kernelerr.Newf(kernelerr.RoundingAmountExceeded,
				"entry %s rounding amount %s exceeds threshold %s %s", entryID, rl.Money.Amount(), maxAllowed, rl.Money.Currency())
		}
	}
	return nil
}

// finalizePosting assigns the monotonic sequence and transitions the entry
// to posted (R9, R21).
func (w *Writer) finalizePosting(entry *Entry) error {
	if entry.COAVersion == 0 || entry.DimensionSchemaVersion == 0 || entry.RoundingPolicyVersion == 0 || entry.CurrencyRegistryVersion == 0 {
		return kernelerr.Newf(kernelerr.MissingReferenceSnapshot, "entry %s is missing a reference snapshot version", entry.ID)
	}

	seq, err := w.seq.NextValue(streamEntries)
	if err != nil {
		return fmt.Errorf("allocate journal entry seq: %w", err)
	}
	if seq <= 0 {
		return kernelerr.Newf(kernelerr.AuditChainBroken, "R9 violation: sequence must be strictly positive, got %d", seq)
	}
	entry.Seq = seq
	entry.PostedAt = w.clk.Now()
	entry.Status = ledger.StatusPosted

	if err := immutability.GuardedPut(w.db, store.BucketJournalEntries, entryKey(entry.ID), *entry); err != nil {
		return fmt.Errorf("persist journal entry: %w", err)
	}

	log.Info().Str("entry_id", entry.ID.String()).Str("source_event_id", entry.SourceEventID.String()).
		Str("status", string(entry.Status)).Int64("seq", entry.Seq).Str("idempotency_key", entry.IdempotencyKey).
		Str("ledger_id", entry.LedgerID).Msg("journal_entry_created")

	return nil
}

// validateSubledgerControls runs the G9 check for every ledger intent
// whose ledger ID names a registered subledger type with enforce_on_post
// set. It returns every blocking violation found.
//
// Persistence caveat: by the time this runs, entry and line writes for
// this call are already committed to the store (each store.Put is its own
// bbolt transaction, not a BEGIN...COMMIT spanning the whole Write call).
// A blocking violation here is therefore reported to the caller as a
// failed WriteResult, but the already-written entries are not rolled
// back — the caller is expected to issue a compensating reversal. This is
// a deliberate simplification of the original's single-session rollback,
// recorded in DESIGN.md.
func (w *Writer) validateSubledgerControls(ai intent.AccountingIntent) []reconcile.Violation {
	var violations []reconcile.Violation
	for _, li := range ai.LedgerIntents {
		slType := reconcile.SubledgerType(li.LedgerID)
		contract, found := w.subledgerRegistry.Get(slType)
		if !found || !contract.EnforceOnPost {
			continue
		}

		controlAccountID, controlAccountCode, err := w.roleResolver.Resolve(contract.ControlAccountRole(), "GL", ai.Snapshot.COAVersion)
		if err != nil {
			log.Warn().Str("subledger_type", string(slType)).Str("control_account_role", contract.ControlAccountRole()).
				Str("source_event_id", ai.SourceEventID.String()).Msg("subledger_control_account_unresolvable")
			continue
		}

		for _, currency := range li.Currencies() {
			glBalance, err := w.AccountBalance(controlAccountID, currency, ai.EffectiveDate, contract.Binding.IsDebitNormal)
			if err != nil {
				continue
			}
			slBalance, err := w.subledgerEngine.AggregateBalance(slType, ai.EffectiveDate, currency)
			if err != nil {
				continue
			}

			checkedAt := w.clk.Now()
			violationsFound, verr := w.reconciler.ValidatePost(contract, slBalance.Balance, glBalance, ai.EffectiveDate, checkedAt)
			if verr != nil {
				continue
			}
			for _, v := range violationsFound {
				if v.Blocking {
					log.Error().Str("subledger_type", string(slType)).Str("currency", currency).
						Str("account_code", controlAccountCode).Str("source_event_id", ai.SourceEventID.String()).
						Msg("subledger_control_violation")
				}
			}
			violations = append(violations, violationsFound...)
		}
	}
	return violations
}

// AccountBalance sums posted journal lines against accountID as of
// asOfDate, signed by the account's normal balance. Exported so other
// services (subledger period close) can query a GL control account's
// balance without duplicating the scan.
func (w *Writer) AccountBalance(accountID uuid.UUID, currency string, asOfDate time.Time, isDebitNormal bool) (money.Money, error) {
	cur := money.MustCurrency(currency)
	debitTotal := money.Zero(cur)
	creditTotal := money.Zero(cur)

	entriesByID := make(map[uuid.UUID]Entry)
	err := store.ForEach(w.db, store.BucketJournalEntries, func(_ string, e Entry) error {
		if e.Status == ledger.StatusPosted && !e.EffectiveDate.After(asOfDate) {
			entriesByID[e.ID] = e
		}
		return nil
	})
	if err != nil {
		return money.Money{}, err
	}

	err = store.ForEach(w.db, store.BucketJournalLines, func(_ string, l Line) error {
		if l.AccountID != accountID || l.Money.Currency().Code() != currency {
			return nil
		}
		if _, posted := entriesByID[l.JournalEntryID]; !posted {
			return nil
		}
		var addErr error
		if l.Side == ledger.Debit {
			debitTotal, addErr = debitTotal.Add(l.Money)
		} else {
			creditTotal, addErr = creditTotal.Add(l.Money)
		}
		return addErr
	})
	if err != nil {
		return money.Money{}, err
	}

	if isDebitNormal {
		return debitTotal.Sub(creditTotal)
	}
	return creditTotal.Sub(debitTotal)
}
