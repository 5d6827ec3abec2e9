package trustchain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BundleVersion is the only version accepted by Import. A new wire shape is
// a hard fork and gets a new version string, never a silent field addition.
const BundleVersion = "isnad-bundle/v1"

// BundleStats summarizes a bundle's contents for inspection without
// re-walking the attestation list.
type BundleStats struct {
	Count    int `json:"count"`
	Subjects int `json:"subjects"`
	Witnesses int `json:"witnesses"`
}

// Bundle is the portable snapshot of a trust chain. SignedBy/SignerPubkey/
// Signature are optional; when Signature is present, Import treats the
// bundle as atomic: any modification to Attestations invalidates the whole
// bundle rather than being filtered per-item.
type Bundle struct {
	Version      string                 `json:"version"`
	Attestations []*Attestation         `json:"attestations"`
	CreatedAt    string                 `json:"created_at"`
	Stats        BundleStats            `json:"stats"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	SignedBy     string                 `json:"signed_by,omitempty"`
	SignerPubkey string                 `json:"signer_pubkey,omitempty"`
	Signature    string                 `json:"signature,omitempty"`
}

// ErrUnsupportedBundleVersion is returned by Import for any version other
// than BundleVersion.
var ErrUnsupportedBundleVersion = errors.New("trustchain: unsupported bundle version")

// ErrBundleSignatureInvalid is returned by Import when a bundle carries a
// signature that does not verify over its (possibly modified) attestation
// list.
var ErrBundleSignatureInvalid = errors.New("trustchain: bundle signature verification failed")

// Export emits the chain's full attestation set as a portable, unsigned
// Bundle.
func (c *Chain) Export() *Bundle {
	atts := c.Attestations()
	subjects := make(map[string]bool)
	witnesses := make(map[string]bool)
	for _, a := range atts {
		subjects[a.Subject] = true
		witnesses[a.Witness] = true
	}
	return &Bundle{
		Version:      BundleVersion,
		Attestations: atts,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		Stats: BundleStats{
			Count:     len(atts),
			Subjects:  len(subjects),
			Witnesses: len(witnesses),
		},
	}
}

// ExportJSON marshals Export's result to JSON.
func (c *Chain) ExportJSON() ([]byte, error) {
	return json.Marshal(c.Export())
}

// bundleSigningContent is the canonical byte content a bundle signature
// covers: the version tag and the JSON-encoded attestations array, so that
// any mutation of that array invalidates the signature.
func bundleSigningContent(b *Bundle) ([]byte, error) {
	attJSON, err := json.Marshal(b.Attestations)
	if err != nil {
		return nil, err
	}
	return append([]byte(b.Version+"|"), attJSON...), nil
}

// Sign makes the bundle atomic: signer signs over the version tag and
// attestations array, so Import rejects the whole bundle if any
// attestation is altered, added, or removed after signing. signFn is the
// signer's raw signing primitive (identity.AgentIdentity.Sign).
func (b *Bundle) Sign(signerAgentID, signerPubkeyHex string, signFn func(canonical []byte) (string, error)) error {
	content, err := bundleSigningContent(b)
	if err != nil {
		return fmt.Errorf("trustchain: bundle signing content: %w", err)
	}
	sig, err := signFn(content)
	if err != nil {
		return fmt.Errorf("trustchain: sign bundle: %w", err)
	}
	b.SignedBy = signerAgentID
	b.SignerPubkey = signerPubkeyHex
	b.Signature = sig
	return nil
}

// VerifySignature reports whether a signed bundle's signature is valid
// over its current attestation array, using the supplied verify function
// (typically record.Verify bound to SignerPubkey). Unsigned bundles (no
// Signature set) always report true: there is nothing to verify.
func (b *Bundle) VerifySignature(verify func(pubHex string, content []byte, sigHex string) bool) bool {
	if b.Signature == "" {
		return true
	}
	content, err := bundleSigningContent(b)
	if err != nil {
		return false
	}
	return verify(b.SignerPubkey, content, b.Signature)
}

// Import reconstructs attestations from a bundle into a fresh Chain wired
// to revocation. Import never raises for per-item attestation problems: an
// unsigned bundle drops individually invalid attestations (failed
// signature, or rejected by Add due to revocation) while keeping the rest.
// A signed bundle is atomic: if verify reports the signature invalid, the
// whole bundle is rejected and no attestations are added.
//
// verify may be nil only when the bundle is known to be unsigned; Import
// returns ErrBundleSignatureInvalid if a signed bundle is imported with a
// nil verify function.
func Import(data []byte, revocation RevocationChecker, verify func(pubHex string, content []byte, sigHex string) bool) (*Chain, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("trustchain: decode bundle: %w", err)
	}
	if b.Version != BundleVersion {
		return nil, ErrUnsupportedBundleVersion
	}

	if b.Signature != "" {
		if verify == nil || !b.VerifySignature(verify) {
			return nil, ErrBundleSignatureInvalid
		}
	}

	chain := New(revocation)
	for _, a := range b.Attestations {
		chain.Add(a)
	}
	return chain, nil
}
