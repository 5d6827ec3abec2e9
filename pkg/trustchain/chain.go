package trustchain

import (
	"strings"
	"sync"
)

// Scoring constants. These are frozen: scores are only comparable
// across chain instances that agree on them, so changing any value is a
// compatibility break, not a tuning knob.
const (
	baseScore      = 0.2
	decayPerRepeat = 0.5
	chainDecay     = 0.7
	defaultMaxHops = 5
)

// RevocationChecker is the minimal surface TrustChain needs from a
// revocation registry. Defined here (rather than importing
// pkg/revocation directly) so the two packages can be wired together by
// their caller without a cycle; pkg/revocation.Registry satisfies this
// interface.
type RevocationChecker interface {
	IsRevoked(targetID string, scope string) bool
}

// RotationResolver is the minimal surface TrustChain needs from a key
// rotation registry: the lineage of identities an agent has rotated
// through, and the newest identity a given id resolves to.
// identity.RotationRegistry satisfies this interface. When wired,
// TrustScore treats every identity in a lineage as the same actor, on
// both the subject and the witness side.
type RotationResolver interface {
	Lineage(agentID string) []string
	Latest(agentID string) string
}

// Chain is the append-only store of verified attestations with
// by-subject and by-witness secondary indexes. Reads see a consistent
// snapshot as of entry; writes are serialized by mu.
type Chain struct {
	mu sync.RWMutex

	attestations []*Attestation
	bySubject    map[string][]*Attestation
	byWitness    map[string][]*Attestation

	revocation RevocationChecker
	rotations  RotationResolver
}

// New constructs an empty Chain. revocation may be nil, in which case no
// revocation coupling is applied.
func New(revocation RevocationChecker) *Chain {
	return &Chain{
		bySubject:  make(map[string][]*Attestation),
		byWitness:  make(map[string][]*Attestation),
		revocation: revocation,
	}
}

// SetRevocationRegistry wires (or rewires) the revocation checker used by
// Add and TrustScore.
func (c *Chain) SetRevocationRegistry(r RevocationChecker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revocation = r
}

// SetRotationRegistry wires a key rotation resolver. Once set, TrustScore
// accepts attestations witnessed under any identity in a rotation lineage
// and aggregates scores across a subject's retired identities.
func (c *Chain) SetRotationRegistry(r RotationResolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotations = r
}

// Add verifies the attestation's signature, checks revocation of the
// attestation's own id and of the (subject, task) pair, and on success
// appends it and updates indexes. It never mutates state and never
// panics on failure: it returns false.
func (c *Chain) Add(a *Attestation) bool {
	if a == nil || !a.Verify() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.revocation != nil {
		id := a.AttestationID()
		if c.revocation.IsRevoked(id, "") || c.revocation.IsRevoked(a.Subject, a.Task) {
			return false
		}
	}

	c.attestations = append(c.attestations, a)
	c.bySubject[a.Subject] = append(c.bySubject[a.Subject], a)
	c.byWitness[a.Witness] = append(c.byWitness[a.Witness], a)
	return true
}

// Attestations returns the full append-only sequence in insertion order.
// The returned slice is a defensive copy.
func (c *Chain) Attestations() []*Attestation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Attestation, len(c.attestations))
	copy(out, c.attestations)
	return out
}

// BySubject returns the subsequence of attestations whose Subject equals
// subject, insertion order preserved.
func (c *Chain) BySubject(subject string) []*Attestation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.bySubject[subject]
	out := make([]*Attestation, len(src))
	copy(out, src)
	return out
}

// ByWitness returns the subsequence of attestations whose Witness equals
// witness, insertion order preserved.
func (c *Chain) ByWitness(witness string) []*Attestation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.byWitness[witness]
	out := make([]*Attestation, len(src))
	copy(out, src)
	return out
}

func scopeMatches(task, scope string) bool {
	if scope == "" {
		return true
	}
	return strings.Contains(strings.ToLower(task), strings.ToLower(scope))
}

// TrustScore computes the direct trust score for agentID, optionally
// filtered to attestations whose task substring-matches scope. Returns 0
// if the chain holds a revocation registry and agentID (optionally
// scoped) is revoked. The per-witness contribution uses geometric decay:
// the k-th attestation from a witness contributes base*decayPerRepeat^(k-1);
// the sum across witnesses is clamped to [0, 1].
func (c *Chain) TrustScore(agentID string, scope string) float64 {
	if c.revocation != nil && c.revocation.IsRevoked(agentID, scope) {
		return 0
	}

	c.mu.RLock()
	subjects := map[string]bool{agentID: true}
	if c.rotations != nil {
		for _, id := range c.rotations.Lineage(agentID) {
			subjects[id] = true
		}
	}
	filtered := make([]*Attestation, 0)
	for _, a := range c.attestations {
		if subjects[a.Subject] && scopeMatches(a.Task, scope) {
			filtered = append(filtered, a)
		}
	}
	rotations := c.rotations
	c.mu.RUnlock()

	// Witnesses are grouped by their newest identity so a witness that
	// rotated keys mid-history still decays as a single repeat witness.
	witnessKey := func(w string) string {
		if rotations != nil {
			return rotations.Latest(w)
		}
		return w
	}

	witnessOrder := make([]string, 0)
	counts := make(map[string]int)
	for _, a := range filtered {
		w := witnessKey(a.Witness)
		if _, seen := counts[w]; !seen {
			witnessOrder = append(witnessOrder, w)
		}
		counts[w]++
	}

	var total float64
	for _, w := range witnessOrder {
		k := counts[w]
		// base * (1 - decay^k) / (1 - decay)
		total += baseScore * (1 - pow(decayPerRepeat, k)) / (1 - decayPerRepeat)
	}

	if total > 1 {
		total = 1
	}
	if total < 0 {
		total = 0
	}
	return total
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// ChainTrust computes transitive trust from source to target via BFS over
// the witness->subject attestation graph, bounded by maxHops (0 means use
// the default of 5). Each hop multiplies by chainDecay; returns 0 if no
// path exists within maxHops, or if source == target (no self path).
func (c *Chain) ChainTrust(source, target string, maxHops int) float64 {
	if source == target {
		return 0
	}
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	visited := map[string]bool{source: true}
	frontier := []string{source}

	for hop := 1; hop <= maxHops; hop++ {
		next := make([]string, 0)
		for _, w := range frontier {
			for _, a := range c.byWitness[w] {
				if a.Subject == target {
					return pow(chainDecay, hop)
				}
				if !visited[a.Subject] {
					visited[a.Subject] = true
					next = append(next, a.Subject)
				}
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return 0
}
