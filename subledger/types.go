// Package subledger implements the subsidiary ledgers (AP, AR, Inventory,
// Bank, WIP, and the supplemental Fixed Assets / Payroll / Intercompany
// ledgers) that sit behind a GL control account: single-sided entries,
// GL-linked, reconciled against the control balance via
// ledgerkernel/subledger/reconcile.
package subledger

import (
	"time"

	"github.com/google/uuid"
	"ledgerkernel/kernelerr"
	"ledgerkernel/money"
	"ledgerkernel/subledger/reconcile"
)

// EntryDirection is the side of a single-sided SubledgerEntry.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "debit"
	EntryCredit EntryDirection = "credit"
)

// ReconciliationStatus tracks how much of an entry has been matched off.
type ReconciliationStatus string

const (
	StatusOpen        ReconciliationStatus = "open"
	StatusPartial      ReconciliationStatus = "partial"
	StatusReconciled  ReconciliationStatus = "reconciled"
	StatusWrittenOff  ReconciliationStatus = "written_off"
)

// Entry is a single entry in a subledger: exactly one of Debit/Credit is
// set (SL-G1), linked to its GL journal entry via GLEntryID (SL-G2).
type Entry struct {
	EntryID              uuid.UUID
	SubledgerType        reconcile.SubledgerType
	EntityID             string
	SourceDocumentType   string
	SourceDocumentID     string
	SourceLineID         string
	GLEntryID            uuid.UUID
	GLLineID             *uuid.UUID
	Debit                *money.Money
	Credit               *money.Money
	EffectiveDate        time.Time
	PostedAt             time.Time
	ReconciliationStatus ReconciliationStatus
	ReconciledAmount     *money.Money
	ReconciledToIDs      []uuid.UUID
	Memo                 string
	Reference            string
	Dimensions           map[string]string
}

// NewEntry validates exactly one of debit/credit is set (SL-G1).
func NewEntry(subledgerType reconcile.SubledgerType, entityID, sourceDocumentType, sourceDocumentID string, debit, credit *money.Money, effectiveDate time.Time) (Entry, error) {
	if debit != nil && credit != nil {
		return Entry{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "subledger entry cannot have both debit and credit")
	}
	if debit == nil && credit == nil {
		return Entry{}, kernelerr.New(kernelerr.SubledgerReconciliationError, "subledger entry must have either debit or credit")
	}
	return Entry{
		EntryID:              uuid.New(),
		SubledgerType:        subledgerType,
		EntityID:             entityID,
		SourceDocumentType:   sourceDocumentType,
		SourceDocumentID:     sourceDocumentID,
		Debit:                debit,
		Credit:               credit,
		EffectiveDate:        effectiveDate,
		ReconciliationStatus: StatusOpen,
	}, nil
}

// Direction reports which side is populated.
func (e Entry) Direction() EntryDirection {
	if e.Debit != nil {
		return EntryDebit
	}
	return EntryCredit
}

// Amount returns whichever of Debit/Credit is set.
func (e Entry) Amount() money.Money {
	if e.Debit != nil {
		return *e.Debit
	}
	return *e.Credit
}

// SignedAmount is positive for a debit entry, negative for a credit entry.
func (e Entry) SignedAmount() money.Money {
	if e.Debit != nil {
		return *e.Debit
	}
	return e.Credit.Neg()
}

// Currency is the ISO code of Amount().
func (e Entry) Currency() string { return e.Amount().Currency().Code() }

// IsOpen reports whether the entry is not (yet) fully reconciled.
func (e Entry) IsOpen() bool {
	return e.ReconciliationStatus == StatusOpen || e.ReconciliationStatus == StatusPartial
}

// IsReconciled reports whether the entry is fully reconciled or written off.
func (e Entry) IsReconciled() bool {
	return e.ReconciliationStatus == StatusReconciled || e.ReconciliationStatus == StatusWrittenOff
}

// OpenAmount is the remaining unreconciled amount.
func (e Entry) OpenAmount() (money.Money, error) {
	if e.ReconciledAmount == nil {
		return e.Amount(), nil
	}
	return e.Amount().Sub(*e.ReconciledAmount)
}

// WithReconciliation returns a new Entry with reconciledAmount applied
// against reconciledToID, deriving the new status. The receiver is never
// mutated.
func (e Entry) WithReconciliation(reconciledAmount money.Money, reconciledToID uuid.UUID) (Entry, error) {
	newReconciled := reconciledAmount
	if e.ReconciledAmount != nil {
		sum, err := e.ReconciledAmount.Add(reconciledAmount)
		if err != nil {
			return Entry{}, err
		}
		newReconciled = sum
	}

	cmp, err := newReconciled.Cmp(e.Amount())
	if err != nil {
		return Entry{}, err
	}
	var newStatus ReconciliationStatus
	switch {
	case cmp >= 0:
		newStatus = StatusReconciled
	case newReconciled.Amount().IsPositive():
		newStatus = StatusPartial
	default:
		newStatus = StatusOpen
	}

	out := e
	out.ReconciliationStatus = newStatus
	out.ReconciledAmount = &newReconciled
	out.ReconciledToIDs = append(append([]uuid.UUID(nil), e.ReconciledToIDs...), reconciledToID)
	return out, nil
}

// Balance is the entity-level balance computed from a set of entries.
type Balance struct {
	EntityID      string
	SubledgerType reconcile.SubledgerType
	AsOfDate      time.Time
	DebitTotal    money.Money
	CreditTotal   money.Money
	Balance       money.Money
	OpenItemCount int
	Currency      string
}

// IsZero reports whether the computed balance is exactly zero.
func (b Balance) IsZero() bool { return b.Balance.IsZero() }

// Reconciliation is the result of matching a debit entry against a credit
// entry.
type Reconciliation struct {
	ReconciliationID uuid.UUID
	DebitEntryID     uuid.UUID
	CreditEntryID    uuid.UUID
	ReconciledAmount money.Money
	ReconciledAt     time.Time
	IsFullMatch      bool
	Notes            string
}
