package config

import (
	"errors"
	"strings"
)

// ErrConfigNotFound indicates the tenant never configured accounting.
var ErrConfigNotFound = errors.New("ledger/config: accounting not configured for tenant")

// ErrUnknownRole indicates a patch referenced a role the store does not define.
var ErrUnknownRole = errors.New("ledger/config: unknown role")

// MissingRolesError names the semantic roles a posting needs but the
// tenant has not mapped. The operator must complete the account mapping
// before retrying.
type MissingRolesError struct {
	Roles []Role
}

func (e *MissingRolesError) Error() string {
	names := make([]string, 0, len(e.Roles))
	for _, role := range e.Roles {
		names = append(names, string(role))
	}
	return "ledger/config: missing account roles: " + strings.Join(names, ", ")
}
