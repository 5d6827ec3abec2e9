// Package record implements the canonical encoding and ed25519 sign/verify
// framework shared by every signed record type in the trust substrate:
// attestations, revocation entries, delegations, and key rotations.
//
// Canonical content is deterministic, domain-separated by record type, and
// tolerant of absent optional fields (encoded as a distinguished empty
// marker rather than omitted). It is frozen independently of the transport
// (JSON) encoding; changing it invalidates every previously issued
// signature.
package record

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// absentField is the distinguished marker substituted for an empty or
// unset optional field so that "" and "explicitly absent" never collide
// with a present field that happens to canonicalize to the empty string.
const absentField = "\x00"

// fieldSep separates canonical fields. It is a control character that
// cannot appear in any of our field values (agent IDs, hex, RFC3339
// timestamps, free-form scope labels are all validated not to contain it
// at the service boundary; the core itself only ever joins and hashes).
const fieldSep = "\x1f"

// Canonicalize joins domain and fields into the canonical byte string for
// a record type. domain domain-separates distinct record types so that a
// signature over one record type's canonical content can never be replayed
// as a valid signature for another type that happens to share field
// values.
func Canonicalize(domain string, fields ...string) []byte {
	parts := make([]string, 0, len(fields)+1)
	parts = append(parts, domain)
	for _, f := range fields {
		if f == "" {
			parts = append(parts, absentField)
			continue
		}
		parts = append(parts, f)
	}
	return []byte(strings.Join(parts, fieldSep))
}

// ContentHash returns the SHA-256 of canonical content, hex-encoded and
// truncated to n characters (n <= 64). Used for derived IDs such as
// attestation_id and delegation_id.
func ContentHash(canonical []byte, n int) string {
	sum := sha256.Sum256(canonical)
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}

// ErrWrongSignerKeySize and ErrWrongPrivateKeySize are for constructor-time
// key-size failures that must surface as errors; Verify itself never
// returns an error and reports malformed input as a quiet false.
var (
	ErrWrongSignerKeySize = errors.New("record: public key must be 32 bytes")
	ErrWrongPrivateKeySize = errors.New("record: private key must be 64 bytes")
)

// Sign computes the canonical content's ed25519 signature under priv and
// returns it hex-encoded. It never fails for a well-formed key; malformed
// keys are a programmer error and panic, matching identity construction
// already having validated key sizes before a signing key reaches here.
func Sign(priv ed25519.PrivateKey, canonical []byte) string {
	sig := ed25519.Sign(priv, canonical)
	return hex.EncodeToString(sig)
}

// Verify reports whether sigHex is a valid ed25519 signature over
// canonical under pub. It is side-effect-free and never panics: any
// malformed input (bad hex, wrong key size, wrong signature size) yields
// false rather than an error; verification never raises in the hot path.
func Verify(pubHex string, canonical []byte, sigHex string) bool {
	pub, err := hex.DecodeString(pubHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), canonical, sig)
}
