package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPackYAML = `
config_id: "US-ENTITY.2026.v3"
config_version: 3
scope:
  legal_entity: "US-ENTITY"
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
    tolerance_type: "absolute"
    tolerance_amount: "0.01"
    enforce_on_post: true
    enforce_on_close: true
approval_policies:
  - policy_name: "large_manual_journal"
    version: 1
    applies_to_workflow: "manual_journal"
    rules:
      - rule_name: "dual_control"
        priority: 1
        min_amount: "10000.00"
        required_roles: ["controller"]
        min_approvers: 1
controls:
  - name: "require_approval_above_threshold"
    applies_to: "manual_journal"
    blocking: true
`

func TestLoadParsesCompiledPolicyPack(t *testing.T) {
	pack, err := Load([]byte(testPackYAML))
	require.NoError(t, err)

	assert.Equal(t, "US-ENTITY.2026.v3", pack.ConfigID)
	assert.Equal(t, 3, pack.ConfigVersion)
	assert.Equal(t, "USD", pack.Scope.Currency)
	assert.Len(t, pack.RoleBindings, 3)
	require.Len(t, pack.SubledgerContracts, 1)
	assert.Equal(t, "AR", pack.SubledgerContracts[0].SubledgerID)
	require.Len(t, pack.ApprovalPolicies, 1)
	assert.Equal(t, "large_manual_journal", pack.ApprovalPolicies[0].PolicyName)
	require.Len(t, pack.Controls, 1)
}

func TestLoadRejectsMissingConfigID(t *testing.T) {
	_, err := Load([]byte("scope:\n  currency: USD\n"))
	require.Error(t, err)
}

func TestLoadRejectsMissingCurrency(t *testing.T) {
	_, err := Load([]byte("config_id: x\nconfig_version: 1\n"))
	require.Error(t, err)
}

func TestBuildRoleResolverRegistersDeterministicAccountIDs(t *testing.T) {
	pack, err := Load([]byte(testPackYAML))
	require.NoError(t, err)

	resolver := BuildRoleResolver(pack)

	accountID, accountCode, err := resolver.Resolve("OperatingCash", "GL", pack.ConfigVersion)
	require.NoError(t, err)
	assert.Equal(t, "1000", accountCode)

	again := BuildRoleResolver(pack)
	accountID2, _, err := again.Resolve("OperatingCash", "GL", pack.ConfigVersion)
	require.NoError(t, err)
	assert.Equal(t, accountID, accountID2, "account IDs must be deterministic across rebuilds")
}

func TestBuildRoleResolverDerivesAccountTypeFromCodePrefix(t *testing.T) {
	pack, err := Load([]byte(testPackYAML))
	require.NoError(t, err)
	resolver := BuildRoleResolver(pack)

	rec, err := resolver.ResolveFull("SalesRevenue", "GL", pack.ConfigVersion)
	require.NoError(t, err)
	assert.Equal(t, "revenue", rec.AccountType)
	assert.Equal(t, "credit", rec.NormalBalance)
}

func TestBuildSubledgerRegistryResolvesControlAccounts(t *testing.T) {
	pack, err := Load([]byte(testPackYAML))
	require.NoError(t, err)
	resolver := BuildRoleResolver(pack)

	registry, err := BuildSubledgerRegistry(pack, resolver)
	require.NoError(t, err)

	contract, ok := registry.Get("AR")
	require.True(t, ok)
	assert.Equal(t, "1200", contract.Binding.ControlAccountCode)
	assert.True(t, contract.EnforceOnPost)
	assert.True(t, contract.EnforceOnClose)
}

func TestBuildSubledgerRegistryFailsOnUnknownSubledgerID(t *testing.T) {
	pack, err := Load([]byte(testPackYAML))
	require.NoError(t, err)
	pack.SubledgerContracts[0].SubledgerID = "NOT_A_TYPE"
	resolver := BuildRoleResolver(pack)

	_, err = BuildSubledgerRegistry(pack, resolver)
	require.Error(t, err)
}

func TestBuildSubledgerRegistryFailsOnUnresolvableControlRole(t *testing.T) {
	pack, err := Load([]byte(testPackYAML))
	require.NoError(t, err)
	pack.SubledgerContracts[0].ControlAccountRole = "NoSuchRole"
	resolver := BuildRoleResolver(pack)

	_, err = BuildSubledgerRegistry(pack, resolver)
	require.Error(t, err)
}
