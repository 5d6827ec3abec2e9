// Package database provides sentinel errors for repository operations.
// F.4 remediation: explicit errors instead of nil, nil returns.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is a generic fallback for entities with no dedicated sentinel.
	ErrNotFound = errors.New("entity not found")

	ErrAgentNotFound       = errors.New("agent not found")
	ErrAttestationNotFound = errors.New("attestation not found")
	ErrRevocationNotFound  = errors.New("revocation not found")
	ErrDelegationNotFound  = errors.New("delegation not found")
	ErrAuditEntryNotFound  = errors.New("audit entry not found")
	ErrAPIKeyNotFound      = errors.New("api key not found")
)
