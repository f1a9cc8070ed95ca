package intent

import (
	"testing"

	"github.com/google/uuid"
	"ledgerkernel/kernelerr"
)

func TestRoleResolverResolvesRegisteredBinding(t *testing.T) {
	r := NewRoleResolver()
	accountID := uuid.New()
	r.RegisterBinding("InventoryAsset", accountID, "1300", WithAccountName("Inventory"), WithNormalBalance("debit"))

	id, code, err := r.Resolve("InventoryAsset", "GL", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != accountID {
		t.Errorf("got account id %s, want %s", id, accountID)
	}
	if code != "1300" {
		t.Errorf("got account code %q, want %q", code, "1300")
	}
}

func TestRoleResolverMissingBindingFails(t *testing.T) {
	r := NewRoleResolver()
	_, _, err := r.Resolve("Nonexistent", "GL", 1)
	if err == nil {
		t.Fatal("expected error for unresolved role")
	}
	code, ok := kernelerr.CodeOf(err)
	if !ok || code != kernelerr.RoleResolutionFailed {
		t.Errorf("got code %v, want %v", code, kernelerr.RoleResolutionFailed)
	}
}

func TestRoleResolverResolveFullCarriesProvenance(t *testing.T) {
	r := NewRoleResolver()
	accountID := uuid.New()
	r.RegisterBinding("GRNI", accountID, "2150", WithConfigID("coa-v4"), WithConfigVersion(4))

	rec, err := r.ResolveFull("GRNI", "GL", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ConfigID != "coa-v4" || rec.ConfigVersion != 4 {
		t.Errorf("provenance not preserved: %+v", rec)
	}
}

func TestResolveIntentLinesAssignsSequentialLineSeq(t *testing.T) {
	r := NewRoleResolver()
	invID := uuid.New()
	grniID := uuid.New()
	r.RegisterBinding("InventoryAsset", invID, "1300")
	r.RegisterBinding("GRNI", grniID, "2150")

	debit, err := DebitLine("InventoryAsset", "100.00", "USD", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	credit, err := CreditLine("GRNI", "100.00", "USD", nil, "")
	if err != nil {
		t.Fatal(err)
	}
	li, err := NewLedgerIntent("GL", []IntentLine{debit, credit})
	if err != nil {
		t.Fatal(err)
	}

	result := ResolveIntentLines(r, li, "GL", 4)
	if !result.Success {
		t.Fatalf("expected success, got failure: %s", result.ErrorMessage)
	}
	if len(result.ResolvedLines) != 2 {
		t.Fatalf("expected 2 resolved lines, got %d", len(result.ResolvedLines))
	}
	if result.ResolvedLines[0].LineSeq != 1 || result.ResolvedLines[1].LineSeq != 2 {
		t.Errorf("line sequences not assigned in order: %d, %d", result.ResolvedLines[0].LineSeq, result.ResolvedLines[1].LineSeq)
	}
	if result.ResolvedLines[0].AccountRole != "InventoryAsset" {
		t.Errorf("account role not preserved for audit: %q", result.ResolvedLines[0].AccountRole)
	}
}

func TestResolveIntentLinesReportsUnresolvedRoles(t *testing.T) {
	r := NewRoleResolver()
	r.RegisterBinding("InventoryAsset", uuid.New(), "1300")

	debit, _ := DebitLine("InventoryAsset", "100.00", "USD", nil, "")
	credit, _ := CreditLine("UnboundRole", "100.00", "USD", nil, "")
	li, err := NewLedgerIntent("GL", []IntentLine{debit, credit})
	if err != nil {
		t.Fatal(err)
	}

	result := ResolveIntentLines(r, li, "GL", 1)
	if result.Success {
		t.Fatal("expected resolution failure for unbound role")
	}
	if len(result.UnresolvedRoles) != 1 || result.UnresolvedRoles[0] != "UnboundRole" {
		t.Errorf("unresolved roles = %v, want [UnboundRole]", result.UnresolvedRoles)
	}
}
