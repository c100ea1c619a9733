package contract

import (
	"sort"
	"sync"
)

// Registry maps aliases to contracts. It is populated at startup and sealed;
// after Seal it is read-only and safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]Contract
	sealed    bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]Contract)}
}

// Register adds c. It fails with *DuplicateAliasError when the alias is taken,
// *InvalidContractError when the contract is malformed (including path
// placeholders that do not match the declared path parameters) and
// ErrRegistrySealed after Seal.
func (r *Registry) Register(c Contract) error {
	if err := c.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.contracts[c.Alias]; exists {
		return &DuplicateAliasError{Alias: c.Alias}
	}
	r.contracts[c.Alias] = c
	return nil
}

// MustRegister registers every contract and panics on the first failure.
// Registration errors are programmer errors and fatal at startup.
func (r *Registry) MustRegister(cs ...Contract) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Resolve returns the contract registered under alias or *UnknownContractError.
func (r *Registry) Resolve(alias string) (Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[alias]
	if !ok {
		return Contract{}, &UnknownContractError{Alias: alias}
	}
	return c, nil
}

// Aliases returns the registered aliases in sorted order.
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.contracts))
	for alias := range r.contracts {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
