package subledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"ledgerkernel/kernelerr"
	"ledgerkernel/money"
	"ledgerkernel/subledger/reconcile"
)

// creditNormal is the set of subledger types whose balance convention is
// credit - debit (liabilities); every other subledger type is debit-normal
// (assets).
var creditNormal = map[reconcile.SubledgerType]bool{
	reconcile.AP:      true,
	reconcile.Payroll: true,
}

// Engine posts, reconciles, and balances subledger entries, linked to GL
// journal entries via GLEntryID. One Engine instance serves every
// subledger type; SubledgerType is carried per-entry rather than on the
// Engine, since a single ledger (e.g. a consolidated AP ledger) may need
// no more than one instance.
type Engine struct {
	mu      sync.RWMutex
	entries map[string][]Entry // entity_id -> entries, append-only
}

// NewEngine returns an empty, ready-to-use Engine.
func NewEngine() *Engine {
	return &Engine{entries: make(map[string][]Entry)}
}

// ValidateEntry checks required fields before Post accepts an entry.
func ValidateEntry(entry Entry) []string {
	var errs []string
	if entry.SubledgerType == "" {
		errs = append(errs, "subledger type is required")
	}
	if entry.EntityID == "" {
		errs = append(errs, "entity ID is required")
	}
	if entry.SourceDocumentType == "" {
		errs = append(errs, "source document type is required")
	}
	if entry.SourceDocumentID == "" {
		errs = append(errs, "source document ID is required")
	}
	if entry.Debit == nil && entry.Credit == nil {
		errs = append(errs, "amount cannot be zero")
	} else if entry.Amount().IsZero() {
		errs = append(errs, "amount cannot be zero")
	}
	if len(errs) > 0 {
		log.Warn().Str("entry_id", entry.EntryID.String()).Str("subledger_type", string(entry.SubledgerType)).
			Int("error_count", len(errs)).Msg("subledger_entry_validation_failed")
	}
	return errs
}

// Post validates entry, stamps its GL linkage and posted-at time, and
// appends it to the entity's entry history (SL-G2: GL linkage is
// mandatory).
func (e *Engine) Post(entry Entry, glEntryID uuid.UUID, actorID uuid.UUID, postedAt time.Time) (Entry, error) {
	if errs := ValidateEntry(entry); len(errs) > 0 {
		return Entry{}, kernelerr.Newf(kernelerr.SubledgerReconciliationError, "invalid subledger entry: %v", errs)
	}

	entry.GLEntryID = glEntryID
	entry.PostedAt = postedAt

	e.mu.Lock()
	e.entries[entry.EntityID] = append(e.entries[entry.EntityID], entry)
	e.mu.Unlock()

	log.Info().Str("entry_id", entry.EntryID.String()).Str("subledger_type", string(entry.SubledgerType)).
		Str("entity_id", entry.EntityID).Str("gl_entry_id", glEntryID.String()).Str("actor_id", actorID.String()).
		Msg("subledger_entry_posted")

	return entry, nil
}

// GetBalance computes the entity's balance as of asOfDate, optionally
// filtered by currency.
func (e *Engine) GetBalance(entityID string, asOfDate time.Time, currency string) (Balance, error) {
	entries := e.entriesFor(entityID, currency)
	return CalculateBalance(entries, asOfDate)
}

// AggregateBalance computes the balance across every entity posted to
// subledgerType, as of asOfDate, for currency. Used by the GL control
// reconciliation check, which compares the whole subledger against its
// single GL control account rather than one entity at a time.
func (e *Engine) AggregateBalance(subledgerType reconcile.SubledgerType, asOfDate time.Time, currency string) (Balance, error) {
	e.mu.RLock()
	var entries []Entry
	for _, entityEntries := range e.entries {
		for _, entry := range entityEntries {
			if entry.SubledgerType != subledgerType {
				continue
			}
			if currency != "" && entry.Currency() != currency {
				continue
			}
			entries = append(entries, entry)
		}
	}
	e.mu.RUnlock()

	if len(entries) == 0 {
		zero := money.Money{}
		if currency != "" {
			zero = money.Zero(money.MustCurrency(currency))
		}
		return Balance{SubledgerType: subledgerType, AsOfDate: asOfDate, Currency: currency, Balance: zero, DebitTotal: zero, CreditTotal: zero}, nil
	}
	bal, err := CalculateBalance(entries, asOfDate)
	if err != nil {
		return Balance{}, err
	}
	bal.EntityID = ""
	return bal, nil
}

// GetOpenItems returns every unreconciled/partially-reconciled entry for
// entityID, optionally filtered by currency.
func (e *Engine) GetOpenItems(entityID string, currency string) []Entry {
	var open []Entry
	for _, entry := range e.entriesFor(entityID, currency) {
		if entry.IsOpen() {
			open = append(open, entry)
		}
	}
	return open
}

func (e *Engine) entriesFor(entityID, currency string) []Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	all := e.entries[entityID]
	if currency == "" {
		out := make([]Entry, len(all))
		copy(out, all)
		return out
	}
	var out []Entry
	for _, entry := range all {
		if entry.Currency() == currency {
			out = append(out, entry)
		}
	}
	return out
}

// CalculateBalance is a pure function over a set of entries — no I/O, no
// Engine state. asOfDate is required: callers must supply a clock-derived
// date rather than implicitly using wall-clock "today".
func CalculateBalance(entries []Entry, asOfDate time.Time) (Balance, error) {
	if len(entries) == 0 {
		return Balance{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "cannot calculate balance from empty entries")
	}
	if asOfDate.IsZero() {
		return Balance{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "as_of_date is required")
	}

	currency := entries[0].Currency()
	entityID := entries[0].EntityID
	subledgerType := entries[0].SubledgerType

	debitTotal := money.Zero(entries[0].Amount().Currency())
	creditTotal := money.Zero(entries[0].Amount().Currency())
	openCount := 0

	for _, entry := range entries {
		if !entry.EffectiveDate.IsZero() && entry.EffectiveDate.After(asOfDate) {
			continue
		}
		if entry.Debit != nil {
			sum, err := debitTotal.Add(*entry.Debit)
			if err != nil {
				return Balance{}, err
			}
			debitTotal = sum
		}
		if entry.Credit != nil {
			sum, err := creditTotal.Add(*entry.Credit)
			if err != nil {
				return Balance{}, err
			}
			creditTotal = sum
		}
		if entry.IsOpen() {
			openCount++
		}
	}

	var balanceAmount money.Money
	var err error
	if creditNormal[subledgerType] {
		balanceAmount, err = creditTotal.Sub(debitTotal)
	} else {
		balanceAmount, err = debitTotal.Sub(creditTotal)
	}
	if err != nil {
		return Balance{}, err
	}

	log.Info().Str("entity_id", entityID).Str("subledger_type", string(subledgerType)).
		Str("debit_total", debitTotal.Amount().String()).Str("credit_total", creditTotal.Amount().String()).
		Str("balance", balanceAmount.Amount().String()).Int("open_item_count", openCount).
		Msg("subledger_balance_calculated")

	return Balance{
		EntityID:      entityID,
		SubledgerType: subledgerType,
		AsOfDate:      asOfDate,
		DebitTotal:    debitTotal,
		CreditTotal:   creditTotal,
		Balance:       balanceAmount,
		OpenItemCount: openCount,
		Currency:      currency,
	}, nil
}

// Reconcile matches a debit entry against a credit entry, validating they
// share subledger type, entity, currency, and open status. amount defaults
// to the smaller of the two open amounts when nil.
func Reconcile(debitEntry, creditEntry Entry, amount *money.Money, reconciledAt time.Time) (Reconciliation, error) {
	if debitEntry.SubledgerType != creditEntry.SubledgerType {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "cannot reconcile entries from different subledgers")
	}
	if debitEntry.EntityID != creditEntry.EntityID {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "cannot reconcile entries for different entities")
	}
	if debitEntry.Direction() != EntryDebit {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "first entry must be a debit")
	}
	if creditEntry.Direction() != EntryCredit {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "second entry must be a credit")
	}
	if debitEntry.Currency() != creditEntry.Currency() {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "cannot reconcile entries in different currencies")
	}
	if !debitEntry.IsOpen() || !creditEntry.IsOpen() {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "both entries must be open for reconciliation")
	}

	debitOpen, err := debitEntry.OpenAmount()
	if err != nil {
		return Reconciliation{}, err
	}
	creditOpen, err := creditEntry.OpenAmount()
	if err != nil {
		return Reconciliation{}, err
	}

	var useAmount money.Money
	if amount != nil {
		useAmount = *amount
	} else {
		useAmount = smallerOf(debitOpen, creditOpen)
	}

	if !useAmount.Amount().IsPositive() {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "reconciliation amount must be positive")
	}
	if cmp, _ := useAmount.Cmp(debitOpen); cmp > 0 {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "amount exceeds debit entry open amount")
	}
	if cmp, _ := useAmount.Cmp(creditOpen); cmp > 0 {
		return Reconciliation{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "amount exceeds credit entry open amount")
	}

	isFull := useAmount.Amount().Equal(debitOpen.Amount()) && useAmount.Amount().Equal(creditOpen.Amount())

	log.Info().Str("debit_entry_id", debitEntry.EntryID.String()).Str("credit_entry_id", creditEntry.EntryID.String()).
		Str("reconciled_amount", useAmount.Amount().String()).Bool("is_full_match", isFull).Msg("subledger_reconciliation_completed")

	return Reconciliation{
		ReconciliationID: uuid.New(),
		DebitEntryID:     debitEntry.EntryID,
		CreditEntryID:    creditEntry.EntryID,
		ReconciledAmount: useAmount,
		ReconciledAt:     reconciledAt,
		IsFullMatch:      isFull,
	}, nil
}

func smallerOf(a, b money.Money) money.Money {
	if cmp, err := a.Cmp(b); err == nil && cmp <= 0 {
		return a
	}
	return b
}
