// Package config defines the shape of the compiled policy pack the kernel
// consumes — role bindings, subledger control contracts, and scope — and a
// small YAML loader for it. Compilation itself (selecting the pack active
// for a legal entity/date, validating raw policy YAML) happens upstream of
// this package; the kernel only ever sees the already-compiled artifact.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
	"ledgerkernel/kernelerr"
)

// Scope narrows a policy pack to the legal entity and currency it applies
// to.
type Scope struct {
	LegalEntity string `yaml:"legal_entity"`
	Currency    string `yaml:"currency"`
}

// RoleBinding binds one semantic account role to a chart-of-accounts code,
// with an effective date range.
type RoleBinding struct {
	Role          string `yaml:"role"`
	AccountCode   string `yaml:"account_code"`
	EffectiveFrom string `yaml:"effective_from"`
	EffectiveTo   string `yaml:"effective_to,omitempty"`
}

// SubledgerContractDef is the on-disk form of a subledger control contract,
// resolved to a reconcile.Contract by BuildSubledgerRegistry.
type SubledgerContractDef struct {
	SubledgerID        string `yaml:"subledger_id"`
	ControlAccountRole string `yaml:"control_account_role"`
	IsDebitNormal      bool   `yaml:"is_debit_normal"`
	Timing             string `yaml:"timing"`
	ToleranceType      string `yaml:"tolerance_type"`
	ToleranceAmount    string `yaml:"tolerance_amount,omitempty"`
	TolerancePercent   string `yaml:"tolerance_percent,omitempty"`
	EnforceOnPost      bool   `yaml:"enforce_on_post"`
	EnforceOnClose     bool   `yaml:"enforce_on_close"`
}

// ApprovalRuleDef is one rule of an approval policy.
type ApprovalRuleDef struct {
	RuleName             string   `yaml:"rule_name"`
	Priority             int      `yaml:"priority"`
	MinAmount            string   `yaml:"min_amount,omitempty"`
	MaxAmount            string   `yaml:"max_amount,omitempty"`
	RequiredRoles        []string `yaml:"required_roles,omitempty"`
	MinApprovers         int      `yaml:"min_approvers,omitempty"`
	RequireDistinctRoles bool     `yaml:"require_distinct_roles,omitempty"`
	AutoApproveBelow     string   `yaml:"auto_approve_below,omitempty"`
}

// ApprovalPolicyDef is one approval policy, applying to a workflow and
// optionally a specific action within it.
type ApprovalPolicyDef struct {
	PolicyName        string            `yaml:"policy_name"`
	Version           int               `yaml:"version"`
	AppliesToWorkflow string            `yaml:"applies_to_workflow"`
	AppliesToAction   string            `yaml:"applies_to_action,omitempty"`
	PolicyCurrency    string            `yaml:"policy_currency,omitempty"`
	Rules             []ApprovalRuleDef `yaml:"rules"`
}

// ControlRuleDef is a posting-path control check (e.g. a required approval
// gate) keyed by the workflow/action it guards.
type ControlRuleDef struct {
	Name     string `yaml:"name"`
	AppliesTo string `yaml:"applies_to"`
	Blocking bool   `yaml:"blocking"`
}

// CompiledPolicyPack is the opaque artifact the kernel consumes. The
// kernel never re-derives it from raw YAML policy sources — those live
// upstream, outside this package's scope.
type CompiledPolicyPack struct {
	ConfigID           string                 `yaml:"config_id"`
	ConfigVersion      int                    `yaml:"config_version"`
	Scope              Scope                  `yaml:"scope"`
	RoleBindings       []RoleBinding          `yaml:"role_bindings"`
	SubledgerContracts []SubledgerContractDef `yaml:"subledger_contracts"`
	ApprovalPolicies   []ApprovalPolicyDef    `yaml:"approval_policies"`
	Controls           []ControlRuleDef       `yaml:"controls"`
}

// Load parses a CompiledPolicyPack from YAML bytes.
func Load(data []byte) (CompiledPolicyPack, error) {
	var pack CompiledPolicyPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return CompiledPolicyPack{}, kernelerr.Newf(kernelerr.ConfigError, "parsing compiled policy pack: %v", err)
	}
	if pack.ConfigID == "" {
		return CompiledPolicyPack{}, kernelerr.New(kernelerr.ConfigError, "compiled policy pack missing config_id")
	}
	if pack.Scope.Currency == "" {
		return CompiledPolicyPack{}, kernelerr.New(kernelerr.ConfigError, "compiled policy pack missing scope.currency")
	}
	return pack, nil
}

// LoadFile reads and parses a CompiledPolicyPack from a YAML file on disk.
func LoadFile(path string) (CompiledPolicyPack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CompiledPolicyPack{}, kernelerr.Newf(kernelerr.ConfigError, "reading compiled policy pack %q: %v", path, err)
	}
	return Load(data)
}
