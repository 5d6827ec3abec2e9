package trustchain

import (
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/record"
)

const attestationDomain = "isnad.attestation.v1"

// Attestation is a signed claim by a witness about a subject performing a
// task. Its attestation_id is a derived content hash, never itself signed
// over (it is computed from the already-canonical, already-signed
// content).
type Attestation struct {
	Subject       string `json:"subject"`
	Witness       string `json:"witness"`
	Task          string `json:"task"`
	Evidence      string `json:"evidence"`
	Timestamp     string `json:"timestamp"`
	WitnessPubkey string `json:"witness_pubkey"`
	Signature     string `json:"signature"`
}

// AttestationID returns the derived attestation_id: the first 16 hex
// characters of sha256(canonical content).
func (a *Attestation) AttestationID() string {
	return record.ContentHash(a.canonical(), 16)
}

func (a *Attestation) canonical() []byte {
	return record.Canonicalize(attestationDomain,
		a.Subject, a.Witness, a.Task, a.Evidence, a.Timestamp,
	)
}

// NewAttestation builds and signs an Attestation from witness about
// subject. timestamp, if zero, defaults to now (UTC, RFC3339). The witness
// field is taken from witness.AgentID(). Returns ErrSignatureInvalid if
// witness cannot sign (no private key material).
func NewAttestation(witness *identity.AgentIdentity, subject, task, evidence string, timestamp time.Time) (*Attestation, error) {
	if !witness.CanSign() {
		return nil, ErrSignatureInvalid
	}
	ts := timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	att := &Attestation{
		Subject:       subject,
		Witness:       witness.AgentID(),
		Task:          task,
		Evidence:      evidence,
		Timestamp:     ts.UTC().Format(time.RFC3339),
		WitnessPubkey: witness.PublicKeyHex(),
	}
	sig, err := witness.Sign(att.canonical())
	if err != nil {
		return nil, err
	}
	att.Signature = sig
	return att, nil
}

// Verify reports whether the attestation's signature is valid against
// WitnessPubkey, and that WitnessPubkey resolves to the declared Witness
// agent_id. It is side-effect-free and never panics.
func (a *Attestation) Verify() bool {
	if a.Signature == "" || a.WitnessPubkey == "" {
		return false
	}
	pub, err := identityFromHex(a.WitnessPubkey)
	if err != nil {
		return false
	}
	if pub != a.Witness {
		return false
	}
	return record.Verify(a.WitnessPubkey, a.canonical(), a.Signature)
}

func identityFromHex(pubHex string) (string, error) {
	id, err := identity.FromPublicKeyHex(pubHex)
	if err != nil {
		return "", err
	}
	return id.AgentID(), nil
}
