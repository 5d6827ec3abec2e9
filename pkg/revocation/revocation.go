// Package revocation implements the signed revocation registry: a
// target-indexed list of RevocationEntry records answering "is
// (target_id, scope) revoked?".
package revocation

import (
	"sync"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/record"
)

const revocationDomain = "isnad.revocation.v1"

// Reason is a closed vocabulary for why a target was revoked. Other is
// the escape hatch for reasons outside the closed set.
type Reason string

const (
	ReasonKeyCompromise     Reason = "key_compromise"
	ReasonSuperseded        Reason = "superseded"
	ReasonCeasedOperation   Reason = "ceased_operation"
	ReasonPrivilegeWithdrawn Reason = "privilege_withdrawn"
	ReasonOther             Reason = "other"
)

// Entry is a signed revocation record. target_id may be an agent_id or
// any attestation_id/delegation_id/record hash. scope == "" means global.
type Entry struct {
	TargetID  string `json:"target_id"`
	Reason    Reason `json:"reason"`
	RevokedBy string `json:"revoked_by"`
	Scope     string `json:"scope,omitempty"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

func (e *Entry) canonical() []byte {
	return record.Canonicalize(revocationDomain,
		e.TargetID, string(e.Reason), e.RevokedBy, e.Scope, e.Timestamp,
	)
}

// NewEntry builds and signs a revocation Entry, signed by revokedBy.
func NewEntry(revokedBy *identity.AgentIdentity, targetID string, reason Reason, scope string, timestamp time.Time) (*Entry, error) {
	ts := timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	e := &Entry{
		TargetID:  targetID,
		Reason:    reason,
		RevokedBy: revokedBy.AgentID(),
		Scope:     scope,
		Timestamp: ts.UTC().Format(time.RFC3339),
	}
	sig, err := revokedBy.Sign(e.canonical())
	if err != nil {
		return nil, err
	}
	e.Signature = sig
	return e, nil
}

// Verify reports whether the entry's signature is valid against the
// RevokedBy identity's public key. RevokedBy carries no pubkey field of
// its own in this record (unlike Attestation); callers supply the
// revoking identity's public key out of band when re-verifying an entry
// pulled off the wire. For entries constructed in-process via NewEntry,
// use VerifyWithKey with the signer's own public key.
func (e *Entry) VerifyWithKey(signerPubkeyHex string) bool {
	if e.Signature == "" {
		return false
	}
	id, err := identity.FromPublicKeyHex(signerPubkeyHex)
	if err != nil || id.AgentID() != e.RevokedBy {
		return false
	}
	return record.Verify(signerPubkeyHex, e.canonical(), e.Signature)
}

// Registry maintains a target-indexed list of revocation entries.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]*Entry
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string][]*Entry)}
}

// Revoke records entry under entry.TargetID. Entries are appended
// unconditionally: repeated revocation of the same target with distinct
// entries (e.g. different scopes) is expected and each is retained.
func (r *Registry) Revoke(entry *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.TargetID] = append(r.entries[entry.TargetID], entry)
}

// IsRevoked reports whether any stored entry for target has scope=="" (a
// global revocation) or scope equal to the queried scope. A global
// revocation subsumes any scoped query.
func (r *Registry) IsRevoked(target string, scope string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries[target] {
		if e.Scope == "" || e.Scope == scope {
			return true
		}
	}
	return false
}

// Entries returns the stored revocation entries for target, insertion
// order preserved.
func (r *Registry) Entries(target string) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.entries[target]
	out := make([]*Entry, len(src))
	copy(out, src)
	return out
}

// Unrevoke removes all entries for target. Administrative reset only;
// not part of normal append-only operation.
func (r *Registry) Unrevoke(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[target]; !ok {
		return false
	}
	delete(r.entries, target)
	return true
}
