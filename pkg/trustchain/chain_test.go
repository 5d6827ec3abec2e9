package trustchain

import (
	"testing"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
)

func attestOrFatal(t *testing.T, chain *Chain, witness *identity.AgentIdentity, subject, task, evidence string) {
	t.Helper()
	a, err := NewAttestation(witness, subject, task, evidence, time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	if !chain.Add(a) {
		t.Fatalf("expected Add to succeed for %s -> %s", witness.AgentID(), subject)
	}
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

func TestSingleEndorsementSetsBaseScore(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	chain := New(nil)
	attestOrFatal(t, chain, alice, bob.AgentID(), "code-review", "pr#1")

	if got := chain.TrustScore(bob.AgentID(), ""); !almostEqual(got, 0.2) {
		t.Fatalf("TrustScore(bob) = %v, want 0.2", got)
	}
	if got := chain.TrustScore(alice.AgentID(), ""); got != 0 {
		t.Fatalf("TrustScore(alice) = %v, want 0", got)
	}
}

// 0.2 + 0.1 + 0.05 == 0.35.
func TestRepeatWitnessDecay(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	chain := New(nil)
	attestOrFatal(t, chain, alice, bob.AgentID(), "code-review", "pr#1")
	attestOrFatal(t, chain, alice, bob.AgentID(), "code-review", "pr#2")
	attestOrFatal(t, chain, alice, bob.AgentID(), "code-review", "pr#3")

	if got := chain.TrustScore(bob.AgentID(), ""); !almostEqual(got, 0.35) {
		t.Fatalf("TrustScore(bob) = %v, want 0.35", got)
	}
}

func TestTransitiveTrustDecaysPerHop(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	charlie, _ := identity.New()
	chain := New(nil)
	attestOrFatal(t, chain, alice, bob.AgentID(), "code-review", "pr#1")
	attestOrFatal(t, chain, bob, charlie.AgentID(), "code-review", "pr#2")

	if got := chain.ChainTrust(alice.AgentID(), bob.AgentID(), 0); !almostEqual(got, 0.7) {
		t.Fatalf("ChainTrust(alice,bob) = %v, want 0.7", got)
	}
	if got := chain.ChainTrust(alice.AgentID(), charlie.AgentID(), 0); !almostEqual(got, 0.49) {
		t.Fatalf("ChainTrust(alice,charlie) = %v, want 0.49", got)
	}
	if got := chain.ChainTrust(alice.AgentID(), alice.AgentID(), 0); got != 0 {
		t.Fatalf("ChainTrust(alice,alice) = %v, want 0 (no self path)", got)
	}
}

func TestGlobalRevocationZeroesScore(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	reg := revocation.New()
	chain := New(reg)
	attestOrFatal(t, chain, alice, bob.AgentID(), "code-review", "pr#1")

	if got := chain.TrustScore(bob.AgentID(), ""); !almostEqual(got, 0.2) {
		t.Fatalf("pre-revocation TrustScore(bob) = %v, want 0.2", got)
	}

	entry, err := revocation.NewEntry(bob, bob.AgentID(), revocation.ReasonCeasedOperation, "", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	reg.Revoke(entry)

	if got := chain.TrustScore(bob.AgentID(), ""); got != 0 {
		t.Fatalf("post-revocation TrustScore(bob) = %v, want 0", got)
	}
}

func TestScopedRevocationIsSurgical(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	reg := revocation.New()
	chain := New(reg)
	attestOrFatal(t, chain, alice, bob.AgentID(), "deploy", "e1")
	attestOrFatal(t, chain, alice, bob.AgentID(), "review", "e2")

	entry, err := revocation.NewEntry(bob, bob.AgentID(), revocation.ReasonOther, "review", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	reg.Revoke(entry)

	if got := chain.TrustScore(bob.AgentID(), "review"); got != 0 {
		t.Fatalf("TrustScore(bob, review) = %v, want 0", got)
	}
	if got := chain.TrustScore(bob.AgentID(), "deploy"); got <= 0 {
		t.Fatalf("TrustScore(bob, deploy) = %v, want > 0", got)
	}
}

func TestEmptyChainBoundary(t *testing.T) {
	chain := New(nil)
	if got := chain.TrustScore("agent:nobody", ""); got != 0 {
		t.Fatalf("TrustScore on empty chain = %v, want 0", got)
	}
	if got := chain.ChainTrust("agent:a", "agent:b", 0); got != 0 {
		t.Fatalf("ChainTrust on empty chain = %v, want 0", got)
	}
}

func TestFiveDistinctWitnessesClampToOne(t *testing.T) {
	bob, _ := identity.New()
	chain := New(nil)
	for i := 0; i < 5; i++ {
		w, _ := identity.New()
		attestOrFatal(t, chain, w, bob.AgentID(), "code-review", "e")
	}
	if got := chain.TrustScore(bob.AgentID(), ""); !almostEqual(got, 1.0) {
		t.Fatalf("TrustScore(bob) = %v, want 1.0", got)
	}
}

func TestAddRejectsInvalidSignature(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	chain := New(nil)
	a, err := NewAttestation(alice, bob.AgentID(), "code-review", "pr", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	a.Task = "tampered"
	if chain.Add(a) {
		t.Fatal("expected Add to reject a tampered attestation")
	}
}

func TestAddRejectsRevokedAttestationID(t *testing.T) {
	alice, _ := identity.New()
	bob, _ := identity.New()
	reg := revocation.New()
	chain := New(reg)

	a, err := NewAttestation(alice, bob.AgentID(), "code-review", "pr", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	entry, err := revocation.NewEntry(alice, a.AttestationID(), revocation.ReasonSuperseded, "", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	reg.Revoke(entry)

	if chain.Add(a) {
		t.Fatal("expected Add to reject an attestation whose own id is revoked")
	}
}
