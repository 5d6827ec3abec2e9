package trustchain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrAttestationIDMismatch is returned on ingest when a wire record
// carries an attestation_id that does not match the id recomputed from
// its content. A mismatch means the record was assembled from fields that
// were not the ones hashed, so it is rejected outright.
var ErrAttestationIDMismatch = errors.New("trustchain: attestation_id does not match content")

// attestationWire is the transport shape of an Attestation: the semantic
// fields plus signature and witness_pubkey, with the derived
// attestation_id included for convenience. The id is never trusted on
// ingest; it is recomputed and checked.
type attestationWire struct {
	AttestationID string `json:"attestation_id,omitempty"`
	Subject       string `json:"subject"`
	Witness       string `json:"witness"`
	Task          string `json:"task"`
	Evidence      string `json:"evidence"`
	Timestamp     string `json:"timestamp"`
	WitnessPubkey string `json:"witness_pubkey"`
	Signature     string `json:"signature"`
}

// ToJSON emits the attestation's wire encoding, including its derived
// attestation_id.
func (a *Attestation) ToJSON() ([]byte, error) {
	return json.Marshal(attestationWire{
		AttestationID: a.AttestationID(),
		Subject:       a.Subject,
		Witness:       a.Witness,
		Task:          a.Task,
		Evidence:      a.Evidence,
		Timestamp:     a.Timestamp,
		WitnessPubkey: a.WitnessPubkey,
		Signature:     a.Signature,
	})
}

// AttestationFromJSON decodes a wire attestation. If the wire record
// carries an attestation_id it is recomputed from content and checked;
// signature validity is not checked here: callers run Verify (or Add,
// which does) next.
func AttestationFromJSON(data []byte) (*Attestation, error) {
	var w attestationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("trustchain: decode attestation: %w", err)
	}
	a := &Attestation{
		Subject:       w.Subject,
		Witness:       w.Witness,
		Task:          w.Task,
		Evidence:      w.Evidence,
		Timestamp:     w.Timestamp,
		WitnessPubkey: w.WitnessPubkey,
		Signature:     w.Signature,
	}
	if w.AttestationID != "" && w.AttestationID != a.AttestationID() {
		return nil, ErrAttestationIDMismatch
	}
	return a, nil
}
