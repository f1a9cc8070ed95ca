package reconcile

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry holds one control contract per subledger type.
type Registry struct {
	mu        sync.RWMutex
	contracts map[SubledgerType]Contract
}

// NewRegistry returns an empty, ready-to-use registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[SubledgerType]Contract)}
}

// Register adds (or replaces) the control contract for its subledger type.
func (r *Registry) Register(contract Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[contract.SubledgerType()] = contract
	log.Info().Str("subledger_type", string(contract.SubledgerType())).
		Str("control_account_role", contract.ControlAccountRole()).
		Str("timing", string(contract.Timing)).
		Bool("enforce_on_post", contract.EnforceOnPost).
		Bool("enforce_on_close", contract.EnforceOnClose).
		Msg("subledger_contract_registered")
}

// Get returns the contract for subledgerType, if registered.
func (r *Registry) Get(subledgerType SubledgerType) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contracts[subledgerType]
	return c, ok
}

// GetAll returns every registered contract, in no particular order.
func (r *Registry) GetAll() []Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Contract, 0, len(r.contracts))
	for _, c := range r.contracts {
		out = append(out, c)
	}
	return out
}

// GetByControlAccountRole finds the contract bound to a given control
// account role, if any.
func (r *Registry) GetByControlAccountRole(controlAccountRole string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.contracts {
		if c.ControlAccountRole() == controlAccountRole {
			return c, true
		}
	}
	return Contract{}, false
}

// HasContractForLedger satisfies intent.ControlContractLookup: a ledger ID
// is looked up as a subledger type (the ledger IDs for subledgers — "AP",
// "AR", ... — double as their SubledgerType values).
func (r *Registry) HasContractForLedger(ledgerID string) bool {
	_, ok := r.Get(SubledgerType(ledgerID))
	return ok
}
