package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
)

// HandleRevoke handles POST /api/revocations: a signed revocation entry
// plus the revoker's public key for verification.
// Body: {"entry": {...}, "revoker_pubkey": "..."}.
func (s *Server) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Entry         *revocation.Entry `json:"entry"`
		RevokerPubkey string            `json:"revoker_pubkey"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Entry == nil || req.Entry.TargetID == "" {
		writeJSONError(w, "entry with target_id is required", http.StatusBadRequest)
		return
	}
	if req.RevokerPubkey == "" {
		writeJSONError(w, "revoker_pubkey is required", http.StatusBadRequest)
		return
	}
	if !req.Entry.VerifyWithKey(req.RevokerPubkey) {
		writeJSONError(w, "revocation signature does not verify", http.StatusBadRequest)
		return
	}

	s.revocations.Revoke(req.Entry)

	eventType := audit.EventAttestationRevoked
	if strings.HasPrefix(req.Entry.TargetID, "agent:") {
		eventType = audit.EventAccessDenied
	}
	s.trail.Log(eventType, req.Entry.RevokedBy, map[string]interface{}{
		"target_id": req.Entry.TargetID,
		"scope":     req.Entry.Scope,
		"reason":    string(req.Entry.Reason),
	})
	if s.metrics != nil {
		s.metrics.RevocationRecorded()
		s.metrics.AuditAppended()
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"target_id": req.Entry.TargetID,
		"status":    "revoked",
	})
}

// HandleRevocationsByTarget handles GET /api/revocations/{target_id}.
func (s *Server) HandleRevocationsByTarget(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	targetID := strings.TrimPrefix(r.URL.Path, "/api/revocations/")
	if targetID == "" || targetID == r.URL.Path {
		writeJSONError(w, "target id required", http.StatusBadRequest)
		return
	}

	entries := s.revocations.Entries(targetID)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"target_id": targetID,
		"revoked":   s.revocations.IsRevoked(targetID, r.URL.Query().Get("scope")),
		"entries":   entries,
	})
}
