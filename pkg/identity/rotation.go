package identity

import (
	"errors"
	"sync"
)

var (
	// ErrRotationInvalid is returned by RotationRegistry.Add for a
	// rotation record whose signature or id derivation does not verify.
	ErrRotationInvalid = errors.New("identity: rotation record does not verify")

	// ErrRotationConflict is returned when an old agent_id already has a
	// different successor registered; a key rotates to exactly one new
	// identity.
	ErrRotationConflict = errors.New("identity: old identity already rotated to a different successor")
)

// RotationRegistry tracks verified KeyRotation records and resolves the
// chain of custody between identities. Consumers that hold a registry
// treat an agent and every identity in its rotation lineage as the same
// actor: attestations witnessed under a retired key still count for the
// successor.
type RotationRegistry struct {
	mu        sync.RWMutex
	successor map[string]string // old agent_id -> new agent_id
	ancestor  map[string]string // new agent_id -> old agent_id
	records   map[string]*KeyRotation // keyed by old agent_id
}

// NewRotationRegistry constructs an empty RotationRegistry.
func NewRotationRegistry() *RotationRegistry {
	return &RotationRegistry{
		successor: make(map[string]string),
		ancestor:  make(map[string]string),
		records:   make(map[string]*KeyRotation),
	}
}

// Add verifies the rotation record and indexes the old->new binding.
// Re-adding the same rotation is a no-op; binding an old identity to a
// second, different successor is ErrRotationConflict.
func (r *RotationRegistry) Add(rot *KeyRotation) error {
	if rot == nil || !rot.Verify() {
		return ErrRotationInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.successor[rot.OldAgentID]; ok {
		if existing == rot.NewAgentID {
			return nil
		}
		return ErrRotationConflict
	}
	r.successor[rot.OldAgentID] = rot.NewAgentID
	r.ancestor[rot.NewAgentID] = rot.OldAgentID
	r.records[rot.OldAgentID] = rot
	return nil
}

// Record returns the rotation record retiring oldAgentID, if any.
func (r *RotationRegistry) Record(oldAgentID string) (*KeyRotation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rot, ok := r.records[oldAgentID]
	return rot, ok
}

// Latest follows successor links from agentID to the newest identity in
// its lineage. An identity that never rotated resolves to itself.
func (r *RotationRegistry) Latest(agentID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{agentID: true}
	current := agentID
	for {
		next, ok := r.successor[current]
		if !ok || seen[next] {
			return current
		}
		seen[next] = true
		current = next
	}
}

// Lineage returns agentID's full rotation lineage, oldest first,
// including agentID itself. The visited guard makes a (forged) cyclic
// chain terminate rather than loop.
func (r *RotationRegistry) Lineage(agentID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{agentID: true}
	oldest := agentID
	for {
		prev, ok := r.ancestor[oldest]
		if !ok || seen[prev] {
			break
		}
		seen[prev] = true
		oldest = prev
	}

	lineage := []string{oldest}
	current := oldest
	for {
		next, ok := r.successor[current]
		if !ok || (next != agentID && containsID(lineage, next)) {
			break
		}
		lineage = append(lineage, next)
		current = next
	}
	return lineage
}

// SameActor reports whether a and b belong to the same rotation lineage.
func (r *RotationRegistry) SameActor(a, b string) bool {
	if a == b {
		return true
	}
	for _, id := range r.Lineage(a) {
		if id == b {
			return true
		}
	}
	return false
}

func containsID(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
