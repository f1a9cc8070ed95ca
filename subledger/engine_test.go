package subledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgerkernel/money"
	"ledgerkernel/subledger/reconcile"
)

func usdMoney(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.ParseMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

func TestNewEntryRejectsBothSides(t *testing.T) {
	debit := usdMoney(t, "100.00")
	credit := usdMoney(t, "100.00")
	_, err := NewEntry(reconcile.AP, "vendor-1", "INVOICE", "INV-1", &debit, &credit, time.Now())
	require.Error(t, err)
}

func TestNewEntryRejectsNeitherSide(t *testing.T) {
	_, err := NewEntry(reconcile.AP, "vendor-1", "INVOICE", "INV-1", nil, nil, time.Now())
	require.Error(t, err)
}

func TestEnginePostAndGetBalanceCreditNormal(t *testing.T) {
	e := NewEngine()
	invoice := usdMoney(t, "1000.00")
	entry, err := NewEntry(reconcile.AP, "vendor-1", "INVOICE", "INV-1", nil, &invoice, time.Now())
	require.NoError(t, err)

	posted, err := e.Post(entry, uuid.New(), uuid.New(), time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.UUID{}, posted.GLEntryID)

	bal, err := e.GetBalance("vendor-1", time.Now().Add(time.Hour), "")
	require.NoError(t, err)
	assert.Equal(t, "1000", bal.Balance.Amount().String())
}

func TestEnginePostRejectsInvalidEntry(t *testing.T) {
	e := NewEngine()
	zero := money.Zero(money.MustCurrency("USD"))
	entry, err := NewEntry(reconcile.AP, "vendor-1", "INVOICE", "INV-1", nil, &zero, time.Now())
	require.NoError(t, err)

	_, err = e.Post(entry, uuid.New(), uuid.New(), time.Now())
	require.Error(t, err)
}

func TestGetOpenItemsExcludesReconciled(t *testing.T) {
	e := NewEngine()
	invoice := usdMoney(t, "500.00")
	entry, err := NewEntry(reconcile.AR, "customer-1", "INVOICE", "INV-2", &invoice, nil, time.Now())
	require.NoError(t, err)
	_, err = e.Post(entry, uuid.New(), uuid.New(), time.Now())
	require.NoError(t, err)

	open := e.GetOpenItems("customer-1", "")
	require.Len(t, open, 1)
	assert.True(t, open[0].IsOpen())
}

func TestReconcileRequiresDebitThenCredit(t *testing.T) {
	invoice := usdMoney(t, "500.00")
	payment := usdMoney(t, "500.00")
	debitEntry, err := NewEntry(reconcile.AR, "customer-1", "INVOICE", "INV-2", &invoice, nil, time.Now())
	require.NoError(t, err)
	creditEntry, err := NewEntry(reconcile.AR, "customer-1", "PAYMENT", "PMT-1", nil, &payment, time.Now())
	require.NoError(t, err)

	result, err := Reconcile(debitEntry, creditEntry, nil, time.Now())
	require.NoError(t, err)
	assert.True(t, result.IsFullMatch)
	assert.Equal(t, "500", result.ReconciledAmount.Amount().String())
}

func TestReconcileRejectsCrossEntity(t *testing.T) {
	invoice := usdMoney(t, "500.00")
	payment := usdMoney(t, "500.00")
	debitEntry, _ := NewEntry(reconcile.AR, "customer-1", "INVOICE", "INV-2", &invoice, nil, time.Now())
	creditEntry, _ := NewEntry(reconcile.AR, "customer-2", "PAYMENT", "PMT-1", nil, &payment, time.Now())

	_, err := Reconcile(debitEntry, creditEntry, nil, time.Now())
	require.Error(t, err)
}

func TestWithReconciliationTransitionsToPartialThenReconciled(t *testing.T) {
	invoice := usdMoney(t, "500.00")
	entry, err := NewEntry(reconcile.AR, "customer-1", "INVOICE", "INV-2", &invoice, nil, time.Now())
	require.NoError(t, err)

	partialAmount := usdMoney(t, "200.00")
	partial, err := entry.WithReconciliation(partialAmount, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, partial.ReconciliationStatus)
	assert.True(t, partial.IsOpen())

	remaining := usdMoney(t, "300.00")
	full, err := partial.WithReconciliation(remaining, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, StatusReconciled, full.ReconciliationStatus)
	assert.False(t, full.IsOpen())
}

func TestCalculateBalanceRequiresNonEmptyEntriesAndDate(t *testing.T) {
	_, err := CalculateBalance(nil, time.Now())
	require.Error(t, err)

	invoice := usdMoney(t, "100.00")
	entry, _ := NewEntry(reconcile.AR, "customer-1", "INVOICE", "INV-3", &invoice, nil, time.Now())
	_, err = CalculateBalance([]Entry{entry}, time.Time{})
	require.Error(t, err)
}

func TestValidateEntryReportsMissingFields(t *testing.T) {
	errs := ValidateEntry(Entry{})
	assert.NotEmpty(t, errs)
}
