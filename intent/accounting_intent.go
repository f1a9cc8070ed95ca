// Package intent defines the contract between the interpretation layer and
// the posting layer. An AccountingIntent names account ROLES, not COA
// codes; the posting layer resolves roles to accounts at write time via a
// RoleResolver and posts every LedgerIntent it carries, one ledger after
// another (see journal.Writer.Write for what a failure part-way leaves
// written).
package intent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"ledgerkernel/kernelerr"
	"ledgerkernel/money"
)

// IntentLineSide is the side of an IntentLine.
type IntentLineSide string

const (
	IntentDebit  IntentLineSide = "debit"
	IntentCredit IntentLineSide = "credit"
)

// IntentLine is a single line in a LedgerIntent, addressed by semantic
// account role rather than COA code: the interpretation layer doesn't know
// specific accounts, only roles like "InventoryAsset" or "GRNI". The
// posting layer resolves the role at write time.
//
// Amount is always non-negative; side carries direction.
type IntentLine struct {
	AccountRole string
	Side        IntentLineSide
	Money       money.Money
	Dimensions  map[string]string
	Memo        string
	IsRounding  bool
}

// NewIntentLine validates side and non-negative amount before returning.
func NewIntentLine(role string, side IntentLineSide, amount money.Money, dims map[string]string, memo string) (IntentLine, error) {
	if side != IntentDebit && side != IntentCredit {
		return IntentLine{}, kernelerr.Newf(kernelerr.UnbalancedEntry, "invalid intent line side: %q", side)
	}
	if amount.Amount().IsNegative() {
		return IntentLine{}, kernelerr.New(kernelerr.UnbalancedEntry, "intent line amount must be non-negative")
	}
	return IntentLine{
		AccountRole: role,
		Side:        side,
		Money:       amount,
		Dimensions:  cloneStringMap(dims),
		Memo:        memo,
	}, nil
}

// DebitLine is a convenience constructor for a debit IntentLine.
func DebitLine(role, amount, currency string, dims map[string]string, memo string) (IntentLine, error) {
	m, err := money.ParseMoney(amount, currency)
	if err != nil {
		return IntentLine{}, err
	}
	return NewIntentLine(role, IntentDebit, m, dims, memo)
}

// CreditLine is a convenience constructor for a credit IntentLine.
func CreditLine(role, amount, currency string, dims map[string]string, memo string) (IntentLine, error) {
	m, err := money.ParseMoney(amount, currency)
	if err != nil {
		return IntentLine{}, err
	}
	return NewIntentLine(role, IntentCredit, m, dims, memo)
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LedgerIntent is the intent targeting a single ledger (e.g. "GL", "AP").
// A single economic event may produce intents for several ledgers; the
// posting layer writes them one ledger after another, and a failure
// part-way does not remove the ledgers already written.
type LedgerIntent struct {
	LedgerID string
	Lines    []IntentLine
}

// NewLedgerIntent requires at least one line.
func NewLedgerIntent(ledgerID string, lines []IntentLine) (LedgerIntent, error) {
	if len(lines) == 0 {
		return LedgerIntent{}, kernelerr.New(kernelerr.UnbalancedIntent, "ledger intent must have at least one line")
	}
	linesCopy := make([]IntentLine, len(lines))
	copy(linesCopy, lines)
	return LedgerIntent{LedgerID: ledgerID, Lines: linesCopy}, nil
}

// Currencies returns the distinct currency codes present in this ledger intent.
func (li LedgerIntent) Currencies() []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range li.Lines {
		code := l.Money.Currency().Code()
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out
}

func (li LedgerIntent) totalSide(side IntentLineSide, currency string) money.Money {
	var cur money.Currency
	found := false
	for _, l := range li.Lines {
		if l.Side != side {
			continue
		}
		if currency != "" && l.Money.Currency().Code() != currency {
			continue
		}
		if !found {
			cur = l.Money.Currency()
			found = true
		}
	}
	if !found {
		if currency != "" {
			cur = money.MustCurrency(currency)
		}
		return money.Zero(cur)
	}
	total := money.Zero(cur)
	for _, l := range li.Lines {
		if l.Side != side {
			continue
		}
		if currency != "" && l.Money.Currency().Code() != currency {
			continue
		}
		total, _ = total.Add(l.Money)
	}
	return total
}

// TotalDebits sums debit amounts, optionally filtered by currency ("" = all).
func (li LedgerIntent) TotalDebits(currency string) money.Money { return li.totalSide(IntentDebit, currency) }

// TotalCredits sums credit amounts, optionally filtered by currency ("" = all).
func (li LedgerIntent) TotalCredits(currency string) money.Money { return li.totalSide(IntentCredit, currency) }

// IsBalanced reports whether debits equal credits, per currency (or every
// currency present if currency == "").
func (li LedgerIntent) IsBalanced(currency string) bool {
	if currency != "" {
		cmp, err := li.TotalDebits(currency).Cmp(li.TotalCredits(currency))
		return err == nil && cmp == 0
	}
	for _, c := range li.Currencies() {
		cmp, err := li.TotalDebits(c).Cmp(li.TotalCredits(c))
		if err != nil || cmp != 0 {
			return false
		}
	}
	return true
}

// RoleBinding is a point-in-time binding of an account role to a COA
// account, used for audit trail reconstruction.
type RoleBinding struct {
	Role           string
	AccountID      uuid.UUID
	AccountCode    string
	COAVersion     int
	EffectiveFrom  time.Time
	EffectiveTo    *time.Time
}

// Snapshot records the reference-data versions an AccountingIntent was
// produced under, so replay can reconstruct identical results.
type Snapshot struct {
	COAVersion              int
	DimensionSchemaVersion  int
	RoundingPolicyVersion   int
	CurrencyRegistryVersion int
	FXPolicyVersion         *int
	FullSnapshotID          *uuid.UUID
}

// AccountingIntent is the contract between the interpretation layer and the
// posting layer: everything the posting layer needs to resolve roles and
// post journal entries for a single economic event, across every affected
// ledger.
type AccountingIntent struct {
	EconEventID    uuid.UUID
	SourceEventID  uuid.UUID
	ProfileID      string
	ProfileVersion int
	EffectiveDate  time.Time
	LedgerIntents  []LedgerIntent
	Snapshot       Snapshot
	Description    string
	TraceID        *uuid.UUID
	CreatedAt      time.Time
	Metadata       map[string]any
}

// NewAccountingIntent requires at least one LedgerIntent: there is never a
// valid zero-ledger intent.
func NewAccountingIntent(econEventID, sourceEventID uuid.UUID, profileID string, profileVersion int, effectiveDate time.Time, ledgerIntents []LedgerIntent, snapshot Snapshot) (AccountingIntent, error) {
	if len(ledgerIntents) == 0 {
		return AccountingIntent{}, kernelerr.New(kernelerr.UnbalancedIntent, "accounting intent must have at least one ledger intent")
	}
	lis := make([]LedgerIntent, len(ledgerIntents))
	copy(lis, ledgerIntents)
	return AccountingIntent{
		EconEventID:    econEventID,
		SourceEventID:  sourceEventID,
		ProfileID:      profileID,
		ProfileVersion: profileVersion,
		EffectiveDate:  effectiveDate,
		LedgerIntents:  lis,
		Snapshot:       snapshot,
	}, nil
}

// LedgerIDs returns the distinct ledger IDs targeted by this intent.
func (ai AccountingIntent) LedgerIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, li := range ai.LedgerIntents {
		if !seen[li.LedgerID] {
			seen[li.LedgerID] = true
			out = append(out, li.LedgerID)
		}
	}
	return out
}

// AllRoles returns every account role referenced anywhere in this intent —
// every role the posting layer must resolve before any line can be posted.
func (ai AccountingIntent) AllRoles() []string {
	seen := map[string]bool{}
	var out []string
	for _, li := range ai.LedgerIntents {
		for _, line := range li.Lines {
			if !seen[line.AccountRole] {
				seen[line.AccountRole] = true
				out = append(out, line.AccountRole)
			}
		}
	}
	return out
}

// GetLedgerIntent returns the intent targeting ledgerID, if any.
func (ai AccountingIntent) GetLedgerIntent(ledgerID string) (LedgerIntent, bool) {
	for _, li := range ai.LedgerIntents {
		if li.LedgerID == ledgerID {
			return li, true
		}
	}
	return LedgerIntent{}, false
}

// IdempotencyKey generates the idempotency key for posting to one ledger.
func (ai AccountingIntent) IdempotencyKey(ledgerID string) string {
	return fmt.Sprintf("%s:%s:%d", ai.EconEventID, ledgerID, ai.ProfileVersion)
}

// AllBalanced reports whether every ledger intent balances per currency.
func (ai AccountingIntent) AllBalanced() bool {
	for _, li := range ai.LedgerIntents {
		if !li.IsBalanced("") {
			return false
		}
	}
	return true
}

// SubledgerWarning is a non-fatal finding from ValidateSubledgerBindings.
type SubledgerWarning struct {
	LedgerID string
	Message  string
}

// typicalSubledgers are the ledger IDs that are expected to carry a
// registered control contract; a warning (not an error) is raised for these
// if no contract exists.
var typicalSubledgers = map[string]bool{
	"AP": true, "AR": true, "INVENTORY": true, "BANK": true,
}

// ControlContractLookup is satisfied by a subledger control registry:
// anything that can answer "is there a control contract bound to this
// ledger?" without the intent package depending on the subledger package.
type ControlContractLookup interface {
	HasContractForLedger(ledgerID string) bool
}

// ValidateSubledgerBindings warns (does not fail) when a typical subledger
// ledger has no registered control contract — missing reconciliation
// coverage, not an invalid posting.
func (ai AccountingIntent) ValidateSubledgerBindings(registry ControlContractLookup) []SubledgerWarning {
	var warnings []SubledgerWarning
	for _, li := range ai.LedgerIntents {
		if registry.HasContractForLedger(li.LedgerID) {
			continue
		}
		if typicalSubledgers[li.LedgerID] {
			warnings = append(warnings, SubledgerWarning{
				LedgerID: li.LedgerID,
				Message:  fmt.Sprintf("no subledger control contract for ledger %s", li.LedgerID),
			})
		}
	}
	return warnings
}

// ResolvedIntentLine is an IntentLine after role resolution: the output of
// the RoleResolver, ready for persistence. AccountRole is preserved purely
// for audit trail reconstruction.
type ResolvedIntentLine struct {
	AccountID   uuid.UUID
	AccountCode string
	AccountRole string
	Side        IntentLineSide
	Money       money.Money
	Dimensions  map[string]string
	Memo        string
	IsRounding  bool
	LineSeq     int
}

// ResolutionResult is the outcome of resolving an AccountingIntent's roles
// for one ledger: exactly one of (ResolvedLines) or (ErrorCode,
// ErrorMessage) is meaningful, selected by Success.
type ResolutionResult struct {
	Success         bool
	ResolvedLines   []ResolvedIntentLine
	ErrorCode       kernelerr.Code
	ErrorMessage    string
	UnresolvedRoles []string
}

// ResolutionOK builds a successful ResolutionResult.
func ResolutionOK(lines []ResolvedIntentLine) ResolutionResult {
	return ResolutionResult{Success: true, ResolvedLines: lines}
}

// ResolutionFail builds a failed ResolutionResult. unresolvedRoles may be nil.
func ResolutionFail(code kernelerr.Code, message string, unresolvedRoles []string) ResolutionResult {
	return ResolutionResult{Success: false, ErrorCode: code, ErrorMessage: message, UnresolvedRoles: unresolvedRoles}
}
