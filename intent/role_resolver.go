package intent

import (
	"sync"

	"github.com/google/uuid"
	"ledgerkernel/kernelerr"
)

// BindingRecord is the full provenance record for a role-to-account
// binding: everything an audit trail needs to reconstruct why a role
// resolved to a given account at a given time.
type BindingRecord struct {
	AccountID      uuid.UUID
	AccountCode    string
	AccountName    string
	AccountType    string
	NormalBalance  string
	EffectiveFrom  string // ISO date, or ""
	EffectiveTo    string // ISO date, or ""
	ConfigID       string
	ConfigVersion  int
}

// RoleResolver maps semantic account roles to COA accounts. Bindings are
// registered ahead of posting (typically from a compiled policy pack) and
// resolved by plain map lookup — never by role-name pattern matching.
type RoleResolver struct {
	mu       sync.RWMutex
	bindings map[string]BindingRecord
}

// NewRoleResolver returns an empty, ready-to-use resolver.
func NewRoleResolver() *RoleResolver {
	return &RoleResolver{bindings: make(map[string]BindingRecord)}
}

// BindingOption sets optional provenance fields on a registered binding.
type BindingOption func(*BindingRecord)

func WithAccountName(name string) BindingOption   { return func(b *BindingRecord) { b.AccountName = name } }
func WithAccountType(t string) BindingOption      { return func(b *BindingRecord) { b.AccountType = t } }
func WithNormalBalance(s string) BindingOption    { return func(b *BindingRecord) { b.NormalBalance = s } }
func WithEffectiveFrom(d string) BindingOption    { return func(b *BindingRecord) { b.EffectiveFrom = d } }
func WithEffectiveTo(d string) BindingOption      { return func(b *BindingRecord) { b.EffectiveTo = d } }
func WithConfigID(id string) BindingOption        { return func(b *BindingRecord) { b.ConfigID = id } }
func WithConfigVersion(v int) BindingOption       { return func(b *BindingRecord) { b.ConfigVersion = v } }

// RegisterBinding registers (or overwrites) the account a role resolves to.
func (r *RoleResolver) RegisterBinding(role string, accountID uuid.UUID, accountCode string, opts ...BindingOption) {
	rec := BindingRecord{AccountID: accountID, AccountCode: accountCode}
	for _, opt := range opts {
		opt(&rec)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[role] = rec
}

// Resolve maps a role to (account_id, account_code), or
// ROLE_RESOLUTION_FAILED if no binding is registered.
func (r *RoleResolver) Resolve(role, ledgerID string, coaVersion int) (uuid.UUID, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bindings[role]
	if !ok {
		return uuid.UUID{}, "", roleResolutionError(role, ledgerID, coaVersion)
	}
	return rec.AccountID, rec.AccountCode, nil
}

// ResolveFull resolves a role and returns its full BindingRecord with
// provenance, for audit-trail construction.
func (r *RoleResolver) ResolveFull(role, ledgerID string, coaVersion int) (BindingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.bindings[role]
	if !ok {
		return BindingRecord{}, roleResolutionError(role, ledgerID, coaVersion)
	}
	return rec, nil
}

// Clear removes every binding. For test teardown only.
func (r *RoleResolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = make(map[string]BindingRecord)
}

func roleResolutionError(role, ledgerID string, coaVersion int) error {
	return kernelerr.Newf(kernelerr.RoleResolutionFailed,
		"cannot resolve role %q for ledger %q at COA version %d", role, ledgerID, coaVersion).
		WithField("role", role).
		WithField("ledger_id", ledgerID).
		WithField("coa_version", coaVersion)
}

// ResolveIntentLines resolves every line of a LedgerIntent through resolver,
// returning a ResolutionResult. LineSeq is assigned in input order starting
// at 1. Every line is attempted, and a failed result reports every role
// that could not be resolved, not just the first.
func ResolveIntentLines(resolver *RoleResolver, li LedgerIntent, ledgerID string, coaVersion int) ResolutionResult {
	resolved := make([]ResolvedIntentLine, 0, len(li.Lines))
	var unresolved []string
	for i, line := range li.Lines {
		accountID, accountCode, err := resolver.Resolve(line.AccountRole, ledgerID, coaVersion)
		if err != nil {
			unresolved = append(unresolved, line.AccountRole)
			continue
		}
		resolved = append(resolved, ResolvedIntentLine{
			AccountID:   accountID,
			AccountCode: accountCode,
			AccountRole: line.AccountRole,
			Side:        line.Side,
			Money:       line.Money,
			Dimensions:  cloneStringMap(line.Dimensions),
			Memo:        line.Memo,
			IsRounding:  line.IsRounding,
			LineSeq:     i + 1,
		})
	}
	if len(unresolved) > 0 {
		return ResolutionFail(kernelerr.RoleResolutionFailed,
			"unresolved account roles for ledger "+ledgerID, unresolved)
	}
	return ResolutionOK(resolved)
}
