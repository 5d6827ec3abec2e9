package revocation

import (
	"testing"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
)

func TestGlobalRevocationSubsumesScopedQuery(t *testing.T) {
	signer, _ := identity.New()
	reg := New()
	entry, err := NewEntry(signer, "agent:target", ReasonKeyCompromise, "", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	reg.Revoke(entry)

	if !reg.IsRevoked("agent:target", "anything") {
		t.Fatal("global revocation should subsume any scoped query")
	}
}

func TestScopedRevocationDoesNotAffectOtherScopes(t *testing.T) {
	signer, _ := identity.New()
	reg := New()
	entry, err := NewEntry(signer, "agent:target", ReasonOther, "deploy", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	reg.Revoke(entry)

	if !reg.IsRevoked("agent:target", "deploy") {
		t.Fatal("expected deploy scope revoked")
	}
	if reg.IsRevoked("agent:target", "review") {
		t.Fatal("review scope should be unaffected by a deploy-scoped revocation")
	}
}

func TestUnrevokeRemovesAllEntriesForTarget(t *testing.T) {
	signer, _ := identity.New()
	reg := New()
	entry, _ := NewEntry(signer, "agent:target", ReasonOther, "", time.Time{})
	reg.Revoke(entry)

	if !reg.Unrevoke("agent:target") {
		t.Fatal("expected Unrevoke to report a removal")
	}
	if reg.IsRevoked("agent:target", "") {
		t.Fatal("target should no longer be revoked after Unrevoke")
	}
	if reg.Unrevoke("agent:target") {
		t.Fatal("second Unrevoke of an already-clear target should report false")
	}
}

func TestVerifyWithKeyRejectsWrongSigner(t *testing.T) {
	signer, _ := identity.New()
	impostor, _ := identity.New()
	entry, err := NewEntry(signer, "agent:target", ReasonOther, "", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if entry.VerifyWithKey(impostor.PublicKeyHex()) {
		t.Fatal("entry should not verify against an unrelated signer's public key")
	}
	if !entry.VerifyWithKey(signer.PublicKeyHex()) {
		t.Fatal("entry should verify against its actual signer's public key")
	}
}
