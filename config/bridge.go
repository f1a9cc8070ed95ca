package config

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"ledgerkernel/intent"
	"ledgerkernel/kernelerr"
	"ledgerkernel/subledger/reconcile"
)

// coaUUIDNamespace is a fixed namespace for deterministic account UUID
// generation: the same account code always yields the same UUID, so a
// resolver rebuilt from the same pack is stable across process restarts.
// In a system with a real account table, account IDs would come from
// there instead.
var coaUUIDNamespace = uuid.MustParse("a1b2c3d4-e5f6-7890-abcd-ef1234567890")

// accountTypeFromCode derives (account_type, normal_balance) from a COA
// code prefix: 1xx assets, 2xx liabilities, 3xx equity, 4xx revenue,
// 5xx/6xx expense. Subledger control accounts use an "SL-" prefix and are
// always debit-normal assets.
func accountTypeFromCode(code string) (accountType, normalBalance string) {
	if strings.HasPrefix(code, "SL-") {
		return "asset", "debit"
	}
	if len(code) == 0 {
		return "expense", "debit"
	}
	switch code[0] {
	case '1':
		return "asset", "debit"
	case '2':
		return "liability", "credit"
	case '3':
		return "equity", "credit"
	case '4':
		return "revenue", "credit"
	case '5', '6':
		return "expense", "debit"
	default:
		return "expense", "debit"
	}
}

// BuildRoleResolver builds a RoleResolver from pack's role bindings.
// Account IDs are generated deterministically (uuid v5) from the account
// code so that rebuilding the resolver from the same pack always produces
// the same IDs.
func BuildRoleResolver(pack CompiledPolicyPack) *intent.RoleResolver {
	resolver := intent.NewRoleResolver()
	for _, binding := range pack.RoleBindings {
		accountID := uuid.NewSHA1(coaUUIDNamespace, []byte(binding.AccountCode))
		atype, nbal := accountTypeFromCode(binding.AccountCode)
		resolver.RegisterBinding(binding.Role, accountID, binding.AccountCode,
			intent.WithAccountName(binding.Role+" ("+binding.AccountCode+")"),
			intent.WithAccountType(atype),
			intent.WithNormalBalance(nbal),
			intent.WithEffectiveFrom(binding.EffectiveFrom),
			intent.WithEffectiveTo(binding.EffectiveTo),
			intent.WithConfigID(pack.ConfigID),
			intent.WithConfigVersion(pack.ConfigVersion),
		)
	}
	return resolver
}

var timingMap = map[string]reconcile.ReconciliationTiming{
	"real_time":  reconcile.RealTime,
	"daily":      reconcile.Daily,
	"period_end": reconcile.PeriodEnd,
}

func buildTolerance(def SubledgerContractDef) (reconcile.ReconciliationTolerance, error) {
	switch strings.ToLower(def.ToleranceType) {
	case "", "none":
		return reconcile.ZeroTolerance(), nil
	case "absolute":
		amount, err := decimal.NewFromString(def.ToleranceAmount)
		if err != nil {
			return reconcile.ReconciliationTolerance{}, kernelerr.Newf(kernelerr.ConfigError,
				"invalid tolerance_amount %q: %v", def.ToleranceAmount, err)
		}
		return reconcile.PenniesTolerance(amount), nil
	case "percentage":
		pct, err := decimal.NewFromString(def.TolerancePercent)
		if err != nil {
			return reconcile.ReconciliationTolerance{}, kernelerr.Newf(kernelerr.ConfigError,
				"invalid tolerance_percent %q: %v", def.TolerancePercent, err)
		}
		return reconcile.PercentTolerance(pct, nil), nil
	default:
		return reconcile.ZeroTolerance(), nil
	}
}

// BuildSubledgerRegistry builds a reconcile.Registry from pack's subledger
// contract definitions, resolving each control_account_role to a concrete
// COA code through roleResolver at config time and recording that code on
// the contract's binding. The post-time G9 check and subledger period close
// still resolve the role again to obtain the control account's ID. Fails
// with ConfigError if a control account role is unresolvable or a
// subledger_id is unrecognized.
func BuildSubledgerRegistry(pack CompiledPolicyPack, roleResolver *intent.RoleResolver) (*reconcile.Registry, error) {
	registry := reconcile.NewRegistry()
	currency := pack.Scope.Currency

	for _, def := range pack.SubledgerContracts {
		slType, err := subledgerTypeFromID(def.SubledgerID)
		if err != nil {
			return nil, err
		}

		_, accountCode, err := roleResolver.Resolve(def.ControlAccountRole, "GL", pack.ConfigVersion)
		if err != nil {
			return nil, kernelerr.Newf(kernelerr.ConfigError,
				"cannot resolve control_account_role %q for subledger %q: %v",
				def.ControlAccountRole, def.SubledgerID, err)
		}

		tolerance, err := buildTolerance(def)
		if err != nil {
			return nil, err
		}

		timing, ok := timingMap[strings.ToLower(def.Timing)]
		if !ok {
			timing = reconcile.RealTime
		}

		registry.Register(reconcile.Contract{
			Binding: reconcile.ControlAccountBinding{
				SubledgerType:      slType,
				ControlAccountRole: def.ControlAccountRole,
				ControlAccountCode: accountCode,
				IsDebitNormal:      def.IsDebitNormal,
				Currency:           currency,
			},
			Timing:         timing,
			Tolerance:      tolerance,
			EnforceOnPost:  def.EnforceOnPost,
			EnforceOnClose: def.EnforceOnClose,
		})
	}

	return registry, nil
}

var validSubledgerTypes = map[string]reconcile.SubledgerType{
	string(reconcile.AP):           reconcile.AP,
	string(reconcile.AR):           reconcile.AR,
	string(reconcile.Inventory):    reconcile.Inventory,
	string(reconcile.FixedAssets):  reconcile.FixedAssets,
	string(reconcile.Bank):         reconcile.Bank,
	string(reconcile.Payroll):      reconcile.Payroll,
	string(reconcile.WIP):          reconcile.WIP,
	string(reconcile.Intercompany): reconcile.Intercompany,
}

func subledgerTypeFromID(id string) (reconcile.SubledgerType, error) {
	normalized := strings.ToUpper(strings.TrimSpace(id))
	if t, ok := validSubledgerTypes[normalized]; ok {
		return t, nil
	}
	valid := make([]string, 0, len(validSubledgerTypes))
	for k := range validSubledgerTypes {
		valid = append(valid, k)
	}
	return "", kernelerr.Newf(kernelerr.ConfigError, "unknown subledger_id %q, valid types: %s",
		id, strings.Join(valid, ", "))
}
