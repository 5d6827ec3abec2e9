package trustchain

import "errors"

// Sentinel errors for trust chain operations.
var (
	// ErrSignatureInvalid is returned by operations that construct an
	// Attestation when the supplied witness identity cannot sign it.
	ErrSignatureInvalid = errors.New("trustchain: signature invalid")

	// ErrAttestationRevoked names the case of an attestation whose own
	// attestation_id is revoked; Chain.Add reports that case as false and
	// does not return this error.
	ErrAttestationRevoked = errors.New("trustchain: attestation is revoked")
)
