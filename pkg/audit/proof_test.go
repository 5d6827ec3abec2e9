package audit

import "testing"

func TestBatchRootAndInclusionProof(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:aaa", nil)
	trail.Log(EventAttestationCreated, "agent:bbb", map[string]interface{}{"attestation_id": "deadbeef"})
	trail.Log(EventAccessGranted, "agent:aaa", nil)

	root, err := trail.BatchRoot()
	if err != nil {
		t.Fatalf("BatchRoot: %v", err)
	}

	for seq := 0; seq < trail.Size(); seq++ {
		proof, err := trail.InclusionProof(seq)
		if err != nil {
			t.Fatalf("InclusionProof(%d): %v", seq, err)
		}
		ok, err := VerifyInclusion(proof.LeafHash, proof, root)
		if err != nil {
			t.Fatalf("VerifyInclusion(%d): %v", seq, err)
		}
		if !ok {
			t.Errorf("entry %d proof did not verify against the batch root", seq)
		}
	}
}

func TestInclusionProofOutOfRange(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:aaa", nil)

	if _, err := trail.InclusionProof(5); err != ErrEntryNotFound {
		t.Errorf("InclusionProof(5) err = %v, want ErrEntryNotFound", err)
	}
	if _, err := trail.InclusionProof(-1); err != ErrEntryNotFound {
		t.Errorf("InclusionProof(-1) err = %v, want ErrEntryNotFound", err)
	}
}

func TestBatchRootEmptyTrail(t *testing.T) {
	if _, err := New().BatchRoot(); err != ErrEmptyTrail {
		t.Errorf("BatchRoot on empty trail err = %v, want ErrEmptyTrail", err)
	}
}

func TestBatchRootChangesOnAppend(t *testing.T) {
	trail := New()
	trail.Log(EventAgentRegistered, "agent:aaa", nil)
	root1, err := trail.BatchRoot()
	if err != nil {
		t.Fatalf("BatchRoot: %v", err)
	}

	trail.Log(EventAccessDenied, "agent:bbb", nil)
	root2, err := trail.BatchRoot()
	if err != nil {
		t.Fatalf("BatchRoot: %v", err)
	}
	if root1 == root2 {
		t.Error("appending an entry must change the batch root")
	}
}
