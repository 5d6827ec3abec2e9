// Package identity implements the ed25519-based self-sovereign agent
// identity: keypair generation, the deterministic agent_id derivation, and
// signed key rotation.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/record"
)

const rotationDomain = "isnad.key_rotation.v1"

var (
	// ErrWrongSigner is a programmer error: Sign was called against a
	// record whose signer field does not match the identity signing it.
	ErrWrongSigner = errors.New("identity: signer does not match record's declared signer field")
)

// AgentIdentity is an ed25519 keypair plus its derived agent_id. It is
// immutable: rotation produces a brand new AgentIdentity value and a
// signed KeyRotation record binding the old id to the new one. Private key
// material never leaves the process except via ExportPrivateKey.
type AgentIdentity struct {
	agentID    string
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey // nil for identities reconstructed from a public key only
}

// DeriveAgentID computes "agent:" || hex(sha256(pubkey))[0:32], a pure
// function of the public key, stable across restarts.
func DeriveAgentID(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "agent:" + hex.EncodeToString(sum[:])[:32]
}

// New generates a fresh ed25519 keypair and wraps it as an AgentIdentity.
func New() (*AgentIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return &AgentIdentity{
		agentID:    DeriveAgentID(pub),
		publicKey:  pub,
		privateKey: priv,
	}, nil
}

// FromPrivateKey reconstructs an AgentIdentity from raw 64-byte ed25519
// private key material (as produced by ExportPrivateKey).
func FromPrivateKey(priv ed25519.PrivateKey) (*AgentIdentity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, record.ErrWrongPrivateKeySize
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &AgentIdentity{
		agentID:    DeriveAgentID(pub),
		publicKey:  pub,
		privateKey: priv,
	}, nil
}

// FromPublicKey reconstructs a verification-only AgentIdentity (no
// signing capability) from a raw 32-byte ed25519 public key. Used when
// re-deriving an identity from a record's *_pubkey convenience field.
func FromPublicKey(pub ed25519.PublicKey) (*AgentIdentity, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, record.ErrWrongSignerKeySize
	}
	return &AgentIdentity{
		agentID:   DeriveAgentID(pub),
		publicKey: pub,
	}, nil
}

// FromPublicKeyHex is a convenience wrapper around FromPublicKey for the
// hex-encoded *_pubkey form records carry on the wire.
func FromPublicKeyHex(pubHex string) (*AgentIdentity, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("identity: invalid public key hex: %w", err)
	}
	return FromPublicKey(raw)
}

// AgentID returns the identity's derived agent_id.
func (a *AgentIdentity) AgentID() string { return a.agentID }

// PublicKey returns the raw public key bytes.
func (a *AgentIdentity) PublicKey() ed25519.PublicKey { return a.publicKey }

// PublicKeyHex returns the hex-encoded public key, the form stored in a
// record's *_pubkey convenience field.
func (a *AgentIdentity) PublicKeyHex() string { return hex.EncodeToString(a.publicKey) }

// CanSign reports whether this identity holds private key material.
func (a *AgentIdentity) CanSign() bool { return a.privateKey != nil }

// ExportPrivateKey returns the raw 64-byte private key. This is the only
// sanctioned way private key material leaves an AgentIdentity.
func (a *AgentIdentity) ExportPrivateKey() (ed25519.PrivateKey, error) {
	if a.privateKey == nil {
		return nil, errors.New("identity: no private key material to export")
	}
	out := make(ed25519.PrivateKey, len(a.privateKey))
	copy(out, a.privateKey)
	return out, nil
}

// Sign produces a raw ed25519 signature (hex-encoded) over canonical
// content using this identity's private key. Callers assert the signer
// field equality invariant before calling; Sign itself only requires
// private key material to be present.
func (a *AgentIdentity) Sign(canonical []byte) (string, error) {
	if a.privateKey == nil {
		return "", errors.New("identity: cannot sign without private key material")
	}
	return record.Sign(a.privateKey, canonical), nil
}

// KeyRotation is the signed record binding an old agent_id to a new one,
// signed by the *old* identity. It is the authoritative chain-of-custody
// link: consumers that observe both old and new identities, along with a
// valid rotation record, must accept attestations witnessed under either.
type KeyRotation struct {
	OldAgentID string `json:"old_agent_id"`
	OldPubkey  string `json:"old_pubkey"`
	NewAgentID string `json:"new_agent_id"`
	NewPubkey  string `json:"new_pubkey"`
	Timestamp  string `json:"timestamp"`
	Signature  string `json:"signature"`
}

func (k *KeyRotation) canonical() []byte {
	return record.Canonicalize(rotationDomain,
		k.OldAgentID, k.OldPubkey, k.NewAgentID, k.NewPubkey, k.Timestamp,
	)
}

// Verify reports whether the rotation record's signature is valid against
// OldPubkey and OldAgentID resolves from OldPubkey. It never panics.
func (k *KeyRotation) Verify() bool {
	if k.Signature == "" || k.OldPubkey == "" {
		return false
	}
	pubBytes, err := hex.DecodeString(k.OldPubkey)
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	if DeriveAgentID(pubBytes) != k.OldAgentID {
		return false
	}
	return record.Verify(k.OldPubkey, k.canonical(), k.Signature)
}

// Rotate generates a new keypair, creates and signs a KeyRotation with the
// old (receiver) identity's key, and returns the new identity plus the
// rotation record. The old identity remains valid and unmodified; it is
// the caller's responsibility to retire it from active use.
func (a *AgentIdentity) Rotate() (*AgentIdentity, *KeyRotation, error) {
	if a.privateKey == nil {
		return nil, nil, errors.New("identity: cannot rotate an identity with no private key material")
	}
	newIdentity, err := New()
	if err != nil {
		return nil, nil, err
	}
	rotation := &KeyRotation{
		OldAgentID: a.agentID,
		OldPubkey:  a.PublicKeyHex(),
		NewAgentID: newIdentity.agentID,
		NewPubkey:  newIdentity.PublicKeyHex(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	sig, err := a.Sign(rotation.canonical())
	if err != nil {
		return nil, nil, err
	}
	rotation.Signature = sig
	return newIdentity, rotation, nil
}
