package intent

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ledgerkernel/kernelerr"
)

type stubControlLookup map[string]bool

func (s stubControlLookup) HasContractForLedger(ledgerID string) bool { return s[ledgerID] }

func TestLedgerIntentRequiresAtLeastOneLine(t *testing.T) {
	_, err := NewLedgerIntent("GL", nil)
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.UnbalancedIntent, code)
}

func TestLedgerIntentIsBalanced(t *testing.T) {
	debit, err := DebitLine("InventoryAsset", "100.00", "USD", nil, "")
	require.NoError(t, err)
	credit, err := CreditLine("GRNI", "100.00", "USD", nil, "")
	require.NoError(t, err)

	li, err := NewLedgerIntent("GL", []IntentLine{debit, credit})
	require.NoError(t, err)
	assert.True(t, li.IsBalanced(""))
	assert.True(t, li.IsBalanced("USD"))
}

func TestLedgerIntentDetectsImbalance(t *testing.T) {
	debit, err := DebitLine("InventoryAsset", "100.00", "USD", nil, "")
	require.NoError(t, err)
	credit, err := CreditLine("GRNI", "90.00", "USD", nil, "")
	require.NoError(t, err)

	li, err := NewLedgerIntent("GL", []IntentLine{debit, credit})
	require.NoError(t, err)
	assert.False(t, li.IsBalanced(""))
}

func TestIntentLineRejectsNegativeAmount(t *testing.T) {
	_, err := DebitLine("InventoryAsset", "-1.00", "USD", nil, "")
	require.Error(t, err)
}

func TestAccountingIntentRequiresAtLeastOneLedgerIntent(t *testing.T) {
	_, err := NewAccountingIntent(uuid.New(), uuid.New(), "profile-1", 1, time.Now(), nil, Snapshot{})
	require.Error(t, err)
	code, _ := kernelerr.CodeOf(err)
	assert.Equal(t, kernelerr.UnbalancedIntent, code)
}

func TestAccountingIntentIdempotencyKeyFormat(t *testing.T) {
	debit, _ := DebitLine("InventoryAsset", "1.00", "USD", nil, "")
	credit, _ := CreditLine("GRNI", "1.00", "USD", nil, "")
	li, _ := NewLedgerIntent("GL", []IntentLine{debit, credit})

	econEventID := uuid.New()
	ai, err := NewAccountingIntent(econEventID, uuid.New(), "profile-1", 3, time.Now(), []LedgerIntent{li}, Snapshot{})
	require.NoError(t, err)

	assert.Equal(t, econEventID.String()+":GL:3", ai.IdempotencyKey("GL"))
}

func TestAccountingIntentAllRolesAndAllBalanced(t *testing.T) {
	debit, _ := DebitLine("InventoryAsset", "50.00", "USD", nil, "")
	credit, _ := CreditLine("GRNI", "50.00", "USD", nil, "")
	li, _ := NewLedgerIntent("GL", []IntentLine{debit, credit})

	ai, err := NewAccountingIntent(uuid.New(), uuid.New(), "profile-1", 1, time.Now(), []LedgerIntent{li}, Snapshot{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"InventoryAsset", "GRNI"}, ai.AllRoles())
	assert.True(t, ai.AllBalanced())
}

func TestValidateSubledgerBindingsWarnsOnMissingContract(t *testing.T) {
	debit, _ := DebitLine("APTrade", "10.00", "USD", nil, "")
	credit, _ := CreditLine("Cash", "10.00", "USD", nil, "")
	li, _ := NewLedgerIntent("AP", []IntentLine{debit, credit})

	ai, err := NewAccountingIntent(uuid.New(), uuid.New(), "profile-1", 1, time.Now(), []LedgerIntent{li}, Snapshot{})
	require.NoError(t, err)

	warnings := ai.ValidateSubledgerBindings(stubControlLookup{})
	require.Len(t, warnings, 1)
	assert.Equal(t, "AP", warnings[0].LedgerID)
}

func TestValidateSubledgerBindingsSilentWhenContractRegistered(t *testing.T) {
	debit, _ := DebitLine("APTrade", "10.00", "USD", nil, "")
	credit, _ := CreditLine("Cash", "10.00", "USD", nil, "")
	li, _ := NewLedgerIntent("AP", []IntentLine{debit, credit})

	ai, err := NewAccountingIntent(uuid.New(), uuid.New(), "profile-1", 1, time.Now(), []LedgerIntent{li}, Snapshot{})
	require.NoError(t, err)

	warnings := ai.ValidateSubledgerBindings(stubControlLookup{"AP": true})
	assert.Empty(t, warnings)
}
