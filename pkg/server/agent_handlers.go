package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
)

// HandleCreateAgent handles POST /api/agents.
// Generates a fresh identity server-side and returns the private key
// exactly once, in this response. The server retains only the public
// half; callers that want the key to never transit the network generate
// locally with the CLI instead.
func (s *Server) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		DisplayName string `json:"display_name"`
	}
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	agent, err := identity.New()
	if err != nil {
		s.logger.Printf("identity generation failed: %v", err)
		writeJSONError(w, "failed to generate identity", http.StatusInternalServerError)
		return
	}
	priv, err := agent.ExportPrivateKey()
	if err != nil {
		writeJSONError(w, "failed to export key", http.StatusInternalServerError)
		return
	}

	s.trail.Log(audit.EventAgentRegistered, agent.AgentID(), map[string]interface{}{
		"display_name": req.DisplayName,
	})
	if s.metrics != nil {
		s.metrics.AuditAppended()
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"agent_id":     agent.AgentID(),
		"public_key":   agent.PublicKeyHex(),
		"private_key":  hex.EncodeToString(priv),
		"display_name": req.DisplayName,
	})
}

// HandleSubmitRotation handles POST /api/rotations: a signed KeyRotation
// record produced by the rotating agent, registered so scores and chain
// queries treat old and new identities as one actor.
func (s *Server) HandleSubmitRotation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rot identity.KeyRotation
	if !decodeBody(w, r, &rot) {
		return
	}

	switch err := s.rotations.Add(&rot); err {
	case nil:
	case identity.ErrRotationInvalid:
		writeJSONError(w, "rotation record does not verify", http.StatusBadRequest)
		return
	case identity.ErrRotationConflict:
		writeJSONError(w, "old identity already rotated to a different successor", http.StatusConflict)
		return
	default:
		writeJSONError(w, "failed to register rotation", http.StatusInternalServerError)
		return
	}

	s.trail.Log(audit.EventKeyRotated, rot.OldAgentID, map[string]interface{}{
		"new_agent_id": rot.NewAgentID,
	})
	if s.metrics != nil {
		s.metrics.AuditAppended()
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"old_agent_id": rot.OldAgentID,
		"new_agent_id": rot.NewAgentID,
		"status":       "registered",
	})
}
