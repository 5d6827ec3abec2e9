package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/config"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/delegation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/merkle"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/policy"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	revs := revocation.New()
	chain := trustchain.New(revs)
	dels := delegation.New(revs)
	rots := identity.NewRotationRegistry()
	trail := audit.New()
	engine := policy.NewEngine(policy.Permissive())
	return New(config.Load(), chain, revs, dels, rots, trail, engine, opts...)
}

func signedAttestation(t *testing.T, witness *identity.AgentIdentity, subject string) []byte {
	t.Helper()
	att, err := trustchain.NewAttestation(witness, subject, "code-review", "pr#1", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	data, err := att.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	return data
}

func TestHandleAddAttestation_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/attestations", nil)
	rr := httptest.NewRecorder()
	s.HandleAddAttestation(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
}

func TestHandleAddAttestation_Success(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()

	body := signedAttestation(t, alice, bob.AgentID())
	req := httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HandleAddAttestation(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected %d, got %d (%s)", http.StatusCreated, rr.Code, rr.Body.String())
	}
	if got := s.chain.TrustScore(bob.AgentID(), ""); got != 0.2 {
		t.Errorf("TrustScore after add = %v, want 0.2", got)
	}
	if s.trail.Size() == 0 {
		t.Error("add should have logged an audit event")
	}
}

func TestHandleAddAttestation_RejectsTamperedSignature(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()

	att, err := trustchain.NewAttestation(alice, bob.AgentID(), "code-review", "pr#1", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	att.Evidence = "pr#2"
	// re-encode without the derived id so the tamper lands on verification
	body, err := json.Marshal(att)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HandleAddAttestation(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleAddAttestation_RejectsSelfAttestation(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()

	body := signedAttestation(t, alice, alice.AgentID())
	req := httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HandleAddAttestation(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleAddAttestation_RevokedSubjectConflicts(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()

	entry, err := revocation.NewEntry(alice, bob.AgentID(), revocation.ReasonKeyCompromise, "", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	s.revocations.Revoke(entry)

	body := signedAttestation(t, alice, bob.AgentID())
	req := httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HandleAddAttestation(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("Expected %d, got %d", http.StatusConflict, rr.Code)
	}
}

func TestHandleTrustScore(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()

	att, err := trustchain.NewAttestation(alice, bob.AgentID(), "deploy", "run#1", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	if !s.chain.Add(att) {
		t.Fatal("chain.Add failed")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/trust/score/"+bob.AgentID(), nil)
	rr := httptest.NewRecorder()
	s.HandleTrustScore(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected %d, got %d", http.StatusOK, rr.Code)
	}
	var resp struct {
		TrustScore float64 `json:"trust_score"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TrustScore != 0.2 {
		t.Errorf("trust_score = %v, want 0.2", resp.TrustScore)
	}
}

func TestHandleTrustScore_MissingAgent(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/trust/score/", nil)
	rr := httptest.NewRecorder()
	s.HandleTrustScore(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected %d, got %d", http.StatusBadRequest, rr.Code)
	}
}

func TestHandleChainTrust(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()
	charlie, _ := identity.New()

	for _, pair := range [][2]*identity.AgentIdentity{{alice, bob}, {bob, charlie}} {
		att, err := trustchain.NewAttestation(pair[0], pair[1].AgentID(), "deploy", "x", time.Time{})
		if err != nil {
			t.Fatalf("NewAttestation: %v", err)
		}
		if !s.chain.Add(att) {
			t.Fatal("chain.Add failed")
		}
	}

	req := httptest.NewRequest(http.MethodGet,
		"/api/trust/chain?source="+alice.AgentID()+"&target="+charlie.AgentID(), nil)
	rr := httptest.NewRecorder()
	s.HandleChainTrust(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected %d, got %d", http.StatusOK, rr.Code)
	}
	var resp struct {
		ChainTrust float64 `json:"chain_trust"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := resp.ChainTrust - 0.49; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("chain_trust = %v, want 0.49", resp.ChainTrust)
	}
}

func TestHandleRevoke_ThenScoreZero(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()

	att, err := trustchain.NewAttestation(alice, bob.AgentID(), "deploy", "x", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	if !s.chain.Add(att) {
		t.Fatal("chain.Add failed")
	}

	entry, err := revocation.NewEntry(alice, bob.AgentID(), revocation.ReasonPrivilegeWithdrawn, "", time.Time{})
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"entry":          entry,
		"revoker_pubkey": alice.PublicKeyHex(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/revocations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HandleRevoke(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected %d, got %d (%s)", http.StatusCreated, rr.Code, rr.Body.String())
	}
	if got := s.chain.TrustScore(bob.AgentID(), ""); got != 0 {
		t.Errorf("post-revocation score = %v, want 0", got)
	}
}

func TestHandleEvaluatePolicy_ZeroPoliciesDenies(t *testing.T) {
	s := newTestServer(t)
	s.engine = policy.NewEngine()
	agent, _ := identity.New()

	body, _ := json.Marshal(map[string]interface{}{"agent_id": agent.AgentID()})
	req := httptest.NewRequest(http.MethodPost, "/api/policy/evaluate", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.HandleEvaluatePolicy(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected %d, got %d", http.StatusOK, rr.Code)
	}
	var resp struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Action != string(policy.ActionDeny) {
		t.Errorf("action = %s, want DENY with zero policies", resp.Action)
	}
}

func TestWriteGuardRequiresAPIKey(t *testing.T) {
	s := newTestServer(t, WithAuthenticator(AuthenticatorFunc(
		func(ctx context.Context, key string) error {
			if key == "valid-key" {
				return nil
			}
			return errors.New("unknown key")
		})))
	alice, _ := identity.New()
	bob, _ := identity.New()
	body := signedAttestation(t, alice, bob.AgentID())

	handler := s.writeGuard(s.HandleAddAttestation)

	req := httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no key: expected %d, got %d", http.StatusUnauthorized, rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "wrong")
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("bad key: expected %d, got %d", http.StatusForbidden, rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/attestations", bytes.NewReader(body))
	req.Header.Set("X-API-Key", "valid-key")
	rr = httptest.NewRecorder()
	handler(rr, req)
	if rr.Code != http.StatusCreated {
		t.Errorf("valid key: expected %d, got %d (%s)", http.StatusCreated, rr.Code, rr.Body.String())
	}
}

func TestHandleBundleExportImportRoundTrip(t *testing.T) {
	s := newTestServer(t)
	alice, _ := identity.New()
	bob, _ := identity.New()

	att, err := trustchain.NewAttestation(alice, bob.AgentID(), "deploy", "x", time.Time{})
	if err != nil {
		t.Fatalf("NewAttestation: %v", err)
	}
	if !s.chain.Add(att) {
		t.Fatal("chain.Add failed")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bundle/export", nil)
	rr := httptest.NewRecorder()
	s.HandleBundleExport(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: expected %d, got %d", http.StatusOK, rr.Code)
	}
	exported := rr.Body.Bytes()

	// import into a fresh server
	s2 := newTestServer(t)
	req = httptest.NewRequest(http.MethodPost, "/api/bundle/import", bytes.NewReader(exported))
	rr = httptest.NewRecorder()
	s2.HandleBundleImport(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("import: expected %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}
	if got := s2.chain.TrustScore(bob.AgentID(), ""); got != 0.2 {
		t.Errorf("score after import = %v, want 0.2", got)
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected %d, got %d", http.StatusOK, rr.Code)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
}

func TestHandleAuditProofVerifies(t *testing.T) {
	s := newTestServer(t)
	s.trail.Log(audit.EventAgentRegistered, "agent:aaa", nil)
	s.trail.Log(audit.EventAccessGranted, "agent:bbb", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/proof/1", nil)
	rr := httptest.NewRecorder()
	s.HandleAuditProof(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected %d, got %d (%s)", http.StatusOK, rr.Code, rr.Body.String())
	}

	var proof merkle.InclusionProof
	if err := json.NewDecoder(rr.Body).Decode(&proof); err != nil {
		t.Fatalf("decode proof: %v", err)
	}
	root, err := s.trail.BatchRoot()
	if err != nil {
		t.Fatalf("BatchRoot: %v", err)
	}
	ok, err := audit.VerifyInclusion(proof.LeafHash, &proof, root)
	if err != nil || !ok {
		t.Errorf("proof for entry 1 did not verify against the batch root (ok=%v, err=%v)", ok, err)
	}
}
