package orchestrator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgerkernel/config"
	"ledgerkernel/intent"
	"ledgerkernel/journal"
	"ledgerkernel/kernelerr"
	"ledgerkernel/money"
	"ledgerkernel/store"
	"ledgerkernel/subledger"
	"ledgerkernel/subledger/reconcile"
	"ledgerkernel/testclock"
)

const testPackYAML = `
config_id: "TEST.v1"
config_version: 1
scope:
  legal_entity: "*"
  currency: "USD"
role_bindings:
  - role: "OperatingCash"
    account_code: "1000"
    effective_from: "2020-01-01"
  - role: "AccountsReceivableControl"
    account_code: "1200"
    effective_from: "2020-01-01"
  - role: "SalesRevenue"
    account_code: "4000"
    effective_from: "2020-01-01"
subledger_contracts:
  - subledger_id: "AR"
    control_account_role: "AccountsReceivableControl"
    is_debit_normal: true
    timing: "real_time"
    tolerance_type: "none"
    enforce_on_post: true
    enforce_on_close: true
`

func newTestOrchestrator(t *testing.T, now time.Time) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pack, err := config.Load([]byte(testPackYAML))
	require.NoError(t, err)
	roleResolver := config.BuildRoleResolver(pack)

	o, err := New(db, pack, roleResolver, testclock.NewSequential(now))
	require.NoError(t, err)
	return o
}

func TestNewWiresEveryServiceInDependencyOrder(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	assert.NotNil(t, o.Sequence)
	assert.NotNil(t, o.Audit)
	assert.NotNil(t, o.Period)
	assert.NotNil(t, o.Journal)
	assert.NotNil(t, o.SubledgerEngine)
	assert.NotNil(t, o.Registry)
	assert.NotNil(t, o.SubledgerPeriod)
}

func TestNewSkipsSubledgerWiringWithoutContracts(t *testing.T) {
	pack, err := config.Load([]byte(`
config_id: "TEST.v2"
config_version: 1
scope:
  currency: "USD"
role_bindings:
  - role: "OperatingCash"
    account_code: "1000"
    effective_from: "2020-01-01"
`))
	require.NoError(t, err)
	roleResolver := config.BuildRoleResolver(pack)

	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	o, err := New(db, pack, roleResolver, testclock.NewSequential(time.Now()))
	require.NoError(t, err)

	assert.Nil(t, o.SubledgerEngine)
	assert.Nil(t, o.Registry)
	assert.Nil(t, o.SubledgerPeriod)
	assert.NotNil(t, o.Journal)
}

func postGLEntry(t *testing.T, o *Orchestrator, amount string, now time.Time) journal.WriteResult {
	t.Helper()
	debit, err := intent.DebitLine("AccountsReceivableControl", amount, "USD", nil, "seed")
	require.NoError(t, err)
	credit, err := intent.CreditLine("SalesRevenue", amount, "USD", nil, "seed")
	require.NoError(t, err)
	li, err := intent.NewLedgerIntent("GL", []intent.IntentLine{debit, credit})
	require.NoError(t, err)
	ai, err := intent.NewAccountingIntent(uuid.New(), uuid.New(), "seed.v1", 1, now,
		[]intent.LedgerIntent{li}, intent.Snapshot{COAVersion: 1, DimensionSchemaVersion: 1, RoundingPolicyVersion: 1, CurrencyRegistryVersion: 1})
	require.NoError(t, err)
	result, err := o.Journal.Write(ai, uuid.New(), "seed.posted")
	require.NoError(t, err)
	require.True(t, result.IsSuccess())
	return result
}

func TestPostSubledgerEntryLinksToJournalEntry(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	result := postGLEntry(t, o, "50.00", now)

	amount, err := money.ParseMoney("50.00", "USD")
	require.NoError(t, err)
	draft, err := subledger.NewEntry(reconcile.AR, "customer-1", "invoice", "INV-1", &amount, nil, now)
	require.NoError(t, err)

	posted, err := o.PostSubledgerEntry(draft, "GL", result, uuid.New(), now)
	require.NoError(t, err)
	assert.Equal(t, result.Entries[0].EntryID, posted.GLEntryID)
}

func TestPostSubledgerEntryFailsWhenLedgerNotWritten(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	result := postGLEntry(t, o, "50.00", now)

	amount, err := money.ParseMoney("50.00", "USD")
	require.NoError(t, err)
	draft, err := subledger.NewEntry(reconcile.AR, "customer-1", "invoice", "INV-1", &amount, nil, now)
	require.NoError(t, err)

	_, err = o.PostSubledgerEntry(draft, "NOT_A_LEDGER", result, uuid.New(), now)
	require.Error(t, err)
}

func TestMakeReversalWriterReversesAnExistingEntry(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	result := postGLEntry(t, o, "50.00", now)

	reverse := o.MakeReversalWriter(uuid.New(), uuid.New())
	reversedID, err := reverse(result.Entries[0].EntryID, now, "correcting entry")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.UUID{}, reversedID)
}

func TestPostRejectsEntryInClosedPeriod(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	monthStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err := o.Period.CreatePeriod("2026-03", "March", monthStart, monthEnd, "actor-1", monthStart)
	require.NoError(t, err)
	_, err = o.Period.ClosePeriod("2026-03", "actor-1", now)
	require.NoError(t, err)

	debit, err := intent.DebitLine("AccountsReceivableControl", "50.00", "USD", nil, "invoice")
	require.NoError(t, err)
	credit, err := intent.CreditLine("SalesRevenue", "50.00", "USD", nil, "invoice")
	require.NoError(t, err)
	li, err := intent.NewLedgerIntent("GL", []intent.IntentLine{debit, credit})
	require.NoError(t, err)
	ai, err := intent.NewAccountingIntent(uuid.New(), uuid.New(), "invoice.v1", 1, now,
		[]intent.LedgerIntent{li}, intent.Snapshot{COAVersion: 1, DimensionSchemaVersion: 1, RoundingPolicyVersion: 1, CurrencyRegistryVersion: 1})
	require.NoError(t, err)

	result, err := o.Post(ai, uuid.New(), "invoice.posted", false)
	require.NoError(t, err)
	assert.Equal(t, journal.StatusValidationFailed, result.Status)
	assert.Equal(t, kernelerr.ClosedPeriod, result.ErrorCode)
}

func TestPostAllowsAdjustmentInClosedPeriodThatPermitsThem(t *testing.T) {
	now := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	monthStart := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	_, err := o.Period.CreatePeriod("2026-03", "March", monthStart, monthEnd, "actor-1", monthStart)
	require.NoError(t, err)
	_, err = o.Period.EnableAdjustments("2026-03", "actor-1")
	require.NoError(t, err)
	_, err = o.Period.ClosePeriod("2026-03", "actor-1", now)
	require.NoError(t, err)

	debit, err := intent.DebitLine("AccountsReceivableControl", "50.00", "USD", nil, "adjustment")
	require.NoError(t, err)
	credit, err := intent.CreditLine("SalesRevenue", "50.00", "USD", nil, "adjustment")
	require.NoError(t, err)
	li, err := intent.NewLedgerIntent("GL", []intent.IntentLine{debit, credit})
	require.NoError(t, err)
	ai, err := intent.NewAccountingIntent(uuid.New(), uuid.New(), "adjustment.v1", 1, now,
		[]intent.LedgerIntent{li}, intent.Snapshot{COAVersion: 1, DimensionSchemaVersion: 1, RoundingPolicyVersion: 1, CurrencyRegistryVersion: 1})
	require.NoError(t, err)

	result, err := o.Post(ai, uuid.New(), "adjustment.posted", true)
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())
}

func TestMakeReversalWriterFailsOnUnknownEntry(t *testing.T) {
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, now)

	reverse := o.MakeReversalWriter(uuid.New(), uuid.New())
	_, err := reverse(uuid.New(), now, "correcting entry")
	require.Error(t, err)
}
