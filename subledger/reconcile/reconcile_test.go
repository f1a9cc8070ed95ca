package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgerkernel/money"
)

func apContract(tolerance ReconciliationTolerance) Contract {
	return Contract{
		Binding: ControlAccountBinding{
			SubledgerType:      AP,
			ControlAccountRole: "AP_CONTROL",
			ControlAccountCode: "2100",
			IsDebitNormal:      false,
			Currency:           "USD",
		},
		Timing:         RealTime,
		Tolerance:      tolerance,
		EnforceOnPost:  true,
		EnforceOnClose: true,
	}
}

func usd(t *testing.T, amount string) money.Money {
	t.Helper()
	m, err := money.ParseMoney(amount, "USD")
	require.NoError(t, err)
	return m
}

func TestReconcileExactMatchIsReconciled(t *testing.T) {
	r := NewReconciler()
	contract := apContract(ZeroTolerance())
	result, err := r.Reconcile(contract, usd(t, "1000.00"), usd(t, "1000.00"), time.Now(), time.Now(), 5)
	require.NoError(t, err)
	assert.True(t, result.IsReconciled)
	assert.True(t, result.IsWithinTolerance)
}

func TestReconcileRejectsCurrencyMismatch(t *testing.T) {
	r := NewReconciler()
	contract := apContract(ZeroTolerance())
	eur, err := money.ParseMoney("1000.00", "EUR")
	require.NoError(t, err)
	_, err = r.Reconcile(contract, usd(t, "1000.00"), eur, time.Now(), time.Now(), 0)
	require.Error(t, err)
}

func TestIsWithinTolerancePercentageCapped(t *testing.T) {
	cap := decimal.NewFromInt(5)
	tol := PercentTolerance(decimal.NewFromFloat(1), &cap)
	assert.True(t, tol.IsWithinTolerance(decimal.NewFromInt(5), decimal.NewFromInt(10000)))
	assert.False(t, tol.IsWithinTolerance(decimal.NewFromInt(6), decimal.NewFromInt(10000)))
}

func TestValidatePostBlocksOutOfBalance(t *testing.T) {
	r := NewReconciler()
	contract := apContract(ZeroTolerance())
	violations, err := r.ValidatePost(contract, usd(t, "1000.00"), usd(t, "950.00"), time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "out_of_balance", violations[0].ViolationType)
	assert.True(t, violations[0].Blocking)
}

func TestValidatePostSkippedWhenNotEnforced(t *testing.T) {
	r := NewReconciler()
	contract := apContract(ZeroTolerance())
	contract.EnforceOnPost = false
	violations, err := r.ValidatePost(contract, usd(t, "1000.00"), usd(t, "950.00"), time.Now(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidatePeriodCloseWarnsWithinTolerance(t *testing.T) {
	r := NewReconciler()
	contract := apContract(PenniesTolerance(decimal.NewFromFloat(0.02)))
	violations, err := r.ValidatePeriodClose(contract, usd(t, "1000.01"), usd(t, "1000.00"), time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "tolerance_warning", violations[0].ViolationType)
	assert.False(t, violations[0].Blocking)
}

func TestValidatePeriodCloseBlocksOutsideTolerance(t *testing.T) {
	r := NewReconciler()
	contract := apContract(PenniesTolerance(decimal.NewFromFloat(0.01)))
	violations, err := r.ValidatePeriodClose(contract, usd(t, "1010.00"), usd(t, "1000.00"), time.Now(), time.Now())
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "period_close_blocked", violations[0].ViolationType)
	assert.True(t, violations[0].Blocking)
}

func TestRegistryGetByControlAccountRole(t *testing.T) {
	reg := NewRegistry()
	reg.Register(apContract(ZeroTolerance()))

	c, ok := reg.GetByControlAccountRole("AP_CONTROL")
	require.True(t, ok)
	assert.Equal(t, AP, c.SubledgerType())

	_, ok = reg.Get(AR)
	assert.False(t, ok)
}
