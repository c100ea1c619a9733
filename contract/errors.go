package contract

import (
	"errors"
	"fmt"
)

// ErrRegistrySealed is returned by Register once the registry is read-only.
var ErrRegistrySealed = errors.New("contract: registry is sealed")

// DuplicateAliasError indicates that a contract alias was registered twice.
type DuplicateAliasError struct {
	Alias string
}

func (e *DuplicateAliasError) Error() string {
	return fmt.Sprintf("contract: duplicate alias %q", e.Alias)
}

// UnknownContractError indicates that no contract is registered under Alias.
type UnknownContractError struct {
	Alias string
}

func (e *UnknownContractError) Error() string {
	return fmt.Sprintf("contract: unknown contract %q", e.Alias)
}

// InvalidContractError indicates a malformed contract declaration.
type InvalidContractError struct {
	Alias  string
	Reason string
}

func (e *InvalidContractError) Error() string {
	if e.Alias == "" {
		return fmt.Sprintf("contract: invalid contract: %s", e.Reason)
	}
	return fmt.Sprintf("contract: invalid contract %q: %s", e.Alias, e.Reason)
}
