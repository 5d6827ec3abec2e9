// Package delegation implements bounded-depth, scope-narrowing delegation
// chains: an agent (principal) grants scoped authority to a delegate, who
// may sub-delegate a subset of that authority onward, up to max_depth.
package delegation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/record"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
)

const delegationDomain = "isnad.delegation.v1"

// ErrInvariantViolation is raised at construction time when a delegation
// would widen scope, exceed depth, or expand expiry relative to its
// parent. Callers must surface it to the user; it is never silently
// degraded.
type ErrInvariantViolation struct{ Reason string }

func (e *ErrInvariantViolation) Error() string {
	return fmt.Sprintf("delegation: invariant violation: %s", e.Reason)
}

var (
	ErrParentNotFound = errors.New("delegation: parent delegation not found")
	ErrSignatureInvalid = errors.New("delegation: signature invalid")
)

// Delegation is a signed grant of authority from principal to delegate,
// optionally rooted in a parent delegation for sub-delegation chains.
type Delegation struct {
	DelegationID string   `json:"delegation_id,omitempty"`
	Principal    string   `json:"principal"`
	Delegate     string   `json:"delegate"`
	Scopes       []string `json:"scopes"`
	MaxDepth     int      `json:"max_depth"`
	Depth        int      `json:"depth"`
	ParentID     string   `json:"parent_id,omitempty"` // "" for a root delegation
	ExpiresAt    string   `json:"expires_at,omitempty"` // RFC3339, "" if unset
	Timestamp    string   `json:"timestamp"`
	SignerPubkey string   `json:"signer_pubkey"`
	Signature    string   `json:"signature"`
}

func (d *Delegation) canonical() []byte {
	return record.Canonicalize(delegationDomain,
		d.Principal, d.Delegate, joinScopes(d.Scopes),
		itoa(d.MaxDepth), itoa(d.Depth), d.ParentID, d.ExpiresAt, d.Timestamp,
	)
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ID computes the derived delegation_id from canonical content.
func (d *Delegation) ID() string {
	return record.ContentHash(d.canonical(), 16)
}

// Verify reports whether the delegation's own signature is valid against
// SignerPubkey. It does not walk the parent chain; use Registry.VerifyChain
// for full-chain verification.
func (d *Delegation) Verify() bool {
	if d.Signature == "" || d.SignerPubkey == "" {
		return false
	}
	return record.Verify(d.SignerPubkey, d.canonical(), d.Signature)
}

// IsExpired reports whether ExpiresAt is set and in the past.
func (d *Delegation) IsExpired() bool {
	if d.ExpiresAt == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, d.ExpiresAt)
	if err != nil {
		return false
	}
	return time.Now().UTC().After(t)
}

// NewRoot builds and signs a root delegation (Depth 0, ParentID "").
// Signed by principal.
func NewRoot(principal *identity.AgentIdentity, delegate string, scopes []string, maxDepth int, expiresAt string) (*Delegation, error) {
	d := &Delegation{
		Principal:    principal.AgentID(),
		Delegate:     delegate,
		Scopes:       scopes,
		MaxDepth:     maxDepth,
		Depth:        0,
		ExpiresAt:    expiresAt,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		SignerPubkey: principal.PublicKeyHex(),
	}
	sig, err := principal.Sign(d.canonical())
	if err != nil {
		return nil, err
	}
	d.Signature = sig
	d.DelegationID = d.ID()
	return d, nil
}

// Registry holds signed delegations, indexed by delegation_id and by
// delegate, and composes with a revocation registry.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]*Delegation
	byDelegate map[string][]string // delegate -> []delegation_id, insertion order

	revocation *revocation.Registry
}

// New constructs an empty Registry. revocation may be nil.
func New(rev *revocation.Registry) *Registry {
	return &Registry{
		byID:       make(map[string]*Delegation),
		byDelegate: make(map[string][]string),
		revocation: rev,
	}
}

// Add verifies the delegation's own signature, checks revocation, checks
// invariants against its parent (if any), and indexes it on success.
func (r *Registry) Add(d *Delegation) error {
	if !d.Verify() {
		return ErrSignatureInvalid
	}
	if r.revocation != nil && r.revocation.IsRevoked(d.ID(), "") {
		return errors.New("delegation: delegation is revoked")
	}

	r.mu.RLock()
	var parent *Delegation
	if d.ParentID != "" {
		parent = r.byID[d.ParentID]
	}
	r.mu.RUnlock()

	if d.ParentID != "" && parent == nil {
		return ErrParentNotFound
	}
	if err := checkInvariants(d, parent); err != nil {
		return err
	}
	if parent != nil {
		r.mu.RLock()
		ok, reason := r.verifyChainLocked(parent.ID())
		r.mu.RUnlock()
		if !ok {
			return &ErrInvariantViolation{Reason: "parent chain invalid: " + reason}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := d.ID()
	d.DelegationID = id
	r.byID[id] = d
	r.byDelegate[d.Delegate] = append(r.byDelegate[d.Delegate], id)
	return nil
}

func checkInvariants(d, parent *Delegation) error {
	if (d.ParentID == "") != (d.Depth == 0) {
		return &ErrInvariantViolation{Reason: "depth==0 iff parent_id unset"}
	}
	if d.Depth > d.MaxDepth {
		return &ErrInvariantViolation{Reason: "depth exceeds max_depth"}
	}
	if parent == nil {
		return nil
	}
	if d.Depth != parent.Depth+1 {
		return &ErrInvariantViolation{Reason: "depth must be parent.depth+1"}
	}
	if d.MaxDepth != parent.MaxDepth {
		return &ErrInvariantViolation{Reason: "max_depth must match root"}
	}
	if !scopesSubsetOf(d.Scopes, parent.Scopes) {
		return &ErrInvariantViolation{Reason: "scope not in parent"}
	}
	if parent.ExpiresAt != "" {
		if d.ExpiresAt == "" {
			return &ErrInvariantViolation{Reason: "expiry cannot be removed when parent has one"}
		}
		childExp, err1 := time.Parse(time.RFC3339, d.ExpiresAt)
		parentExp, err2 := time.Parse(time.RFC3339, parent.ExpiresAt)
		if err1 != nil || err2 != nil || childExp.After(parentExp) {
			return &ErrInvariantViolation{Reason: "expiry expanded beyond parent"}
		}
	}
	if d.Signer() != parent.Delegate {
		return &ErrInvariantViolation{Reason: "non-root signer must equal parent's delegate"}
	}
	return nil
}

// Signer returns the agent_id that signed this delegation, derived from
// SignerPubkey.
func (d *Delegation) Signer() string {
	id, err := identity.FromPublicKeyHex(d.SignerPubkey)
	if err != nil {
		return ""
	}
	return id.AgentID()
}

func scopesSubsetOf(child, parent []string) bool {
	allowed := make(map[string]bool, len(parent))
	for _, s := range parent {
		allowed[s] = true
	}
	for _, s := range child {
		if !allowed[s] {
			return false
		}
	}
	return true
}

// SubDelegate constructs a child delegation from parentID with correctly
// narrowed scopes and clamped expiry, signs it with delegatorIdentity (the
// parent's delegate), and returns the unadded child: the caller must
// still call Add.
func (r *Registry) SubDelegate(parentID string, delegatorIdentity *identity.AgentIdentity, newDelegate string, scopes []string, expiresAt string) (*Delegation, error) {
	r.mu.RLock()
	parent, ok := r.byID[parentID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrParentNotFound
	}
	if !parent.CanSubDelegate() {
		return nil, &ErrInvariantViolation{Reason: "max delegation depth reached"}
	}
	if parent.IsExpired() {
		return nil, &ErrInvariantViolation{Reason: "parent delegation expired"}
	}

	narrowedScopes := scopes
	if narrowedScopes == nil {
		narrowedScopes = parent.Scopes
	} else if !scopesSubsetOf(narrowedScopes, parent.Scopes) {
		return nil, &ErrInvariantViolation{Reason: "scope not in parent"}
	}

	childExpiry := expiresAt
	if childExpiry == "" {
		childExpiry = parent.ExpiresAt
	} else if parent.ExpiresAt != "" {
		childExp, err1 := time.Parse(time.RFC3339, childExpiry)
		parentExp, err2 := time.Parse(time.RFC3339, parent.ExpiresAt)
		if err1 == nil && err2 == nil && childExp.After(parentExp) {
			childExpiry = parent.ExpiresAt
		}
	}

	child := &Delegation{
		Principal:    parent.Delegate,
		Delegate:     newDelegate,
		Scopes:       narrowedScopes,
		MaxDepth:     parent.MaxDepth,
		Depth:        parent.Depth + 1,
		ParentID:     parent.ID(),
		ExpiresAt:    childExpiry,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		SignerPubkey: delegatorIdentity.PublicKeyHex(),
	}
	sig, err := delegatorIdentity.Sign(child.canonical())
	if err != nil {
		return nil, err
	}
	child.Signature = sig
	child.DelegationID = child.ID()
	return child, nil
}

// CanSubDelegate reports whether this delegation has depth remaining to
// permit constructing a child.
func (d *Delegation) CanSubDelegate() bool { return d.Depth < d.MaxDepth }

// VerifyChain walks from leaf to root, returning (true, "valid") iff
// every delegation along the chain verifies, is unexpired, is unrevoked,
// and its invariants hold relative to its parent.
func (r *Registry) VerifyChain(delegationID string) (bool, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.verifyChainLocked(delegationID)
}

func (r *Registry) verifyChainLocked(delegationID string) (bool, string) {
	d, ok := r.byID[delegationID]
	if !ok {
		return false, "delegation not found"
	}
	if d.IsExpired() {
		return false, "delegation expired"
	}
	if !d.Verify() {
		return false, "signature verification failed"
	}
	if r.revocation != nil && r.revocation.IsRevoked(delegationID, "") {
		return false, "delegation revoked"
	}
	if d.ParentID != "" {
		return r.verifyChainLocked(d.ParentID)
	}
	return true, "valid"
}

// DelegationsFor returns all delegations for delegateID, optionally
// filtered to those whose Scopes contains scope.
func (r *Registry) DelegationsFor(delegateID string, scope string) []*Delegation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byDelegate[delegateID]
	out := make([]*Delegation, 0, len(ids))
	for _, id := range ids {
		d := r.byID[id]
		if d == nil {
			continue
		}
		if scope != "" && !containsScope(d.Scopes, scope) {
			continue
		}
		out = append(out, d)
	}
	return out
}

func containsScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// IsAuthorized reports whether there exists a non-expired, non-revoked,
// valid chain terminating at delegateID whose leaf's scopes include
// scope.
func (r *Registry) IsAuthorized(delegateID string, scope string) bool {
	for _, d := range r.DelegationsFor(delegateID, scope) {
		if ok, _ := r.VerifyChain(d.ID()); ok {
			return true
		}
	}
	return false
}

// Get returns the delegation with the given id, if present.
func (r *Registry) Get(delegationID string) (*Delegation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[delegationID]
	return d, ok
}
