package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired indicates a request arrived without tenant identity.
	ErrTenantRequired = errors.New("tenant id required")
)
