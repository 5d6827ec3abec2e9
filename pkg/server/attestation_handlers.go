package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

// HandleAddAttestation handles POST /api/attestations: a fully signed
// wire attestation, verified and appended to the chain.
func (s *Server) HandleAddAttestation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := json.RawMessage{}
	if !decodeBody(w, r, &body) {
		return
	}
	att, err := trustchain.AttestationFromJSON(body)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if att.Subject == "" || att.Witness == "" || att.Task == "" {
		writeJSONError(w, "subject, witness, and task are required", http.StatusBadRequest)
		return
	}
	if att.Subject == att.Witness {
		writeJSONError(w, "witness must differ from subject", http.StatusBadRequest)
		return
	}

	id := att.AttestationID()
	if !att.Verify() {
		s.trail.Log(audit.EventAttestationFailed, att.Witness, map[string]interface{}{
			"attestation_id": id,
			"reason":         "signature",
		})
		if s.metrics != nil {
			s.metrics.AttestationRejected("signature")
		}
		writeJSONError(w, "attestation signature does not verify", http.StatusBadRequest)
		return
	}
	if s.revocations.IsRevoked(id, "") || s.revocations.IsRevoked(att.Subject, att.Task) {
		if s.metrics != nil {
			s.metrics.AttestationRejected("revoked")
		}
		writeJSONError(w, "attestation or subject is revoked", http.StatusConflict)
		return
	}

	if !s.chain.Add(att) {
		if s.metrics != nil {
			s.metrics.AttestationRejected("invalid")
		}
		writeJSONError(w, "attestation rejected", http.StatusBadRequest)
		return
	}

	s.trail.Log(audit.EventAttestationCreated, att.Witness, map[string]interface{}{
		"attestation_id": id,
		"subject":        att.Subject,
		"task":           att.Task,
	})
	if s.metrics != nil {
		s.metrics.AttestationAdded()
		s.metrics.AuditAppended()
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"attestation_id": id,
		"status":         "added",
	})
}

// HandleVerifyAttestation handles POST /api/attestations/verify: checks
// a wire attestation's signature without touching the chain.
func (s *Server) HandleVerifyAttestation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := json.RawMessage{}
	if !decodeBody(w, r, &body) {
		return
	}
	att, err := trustchain.AttestationFromJSON(body)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	valid := att.Verify()
	s.trail.Log(audit.EventAttestationVerified, att.Witness, map[string]interface{}{
		"attestation_id": att.AttestationID(),
		"valid":          valid,
	})
	if s.metrics != nil {
		s.metrics.AuditAppended()
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"attestation_id": att.AttestationID(),
		"valid":          valid,
	})
}

// HandleVerifyBatch handles POST /api/attestations/verify-batch.
// Body: {"attestations": [...], "fail_fast": bool}.
func (s *Server) HandleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Attestations []json.RawMessage `json:"attestations"`
		FailFast     bool              `json:"fail_fast"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	atts := make([]*trustchain.Attestation, len(req.Attestations))
	for i, raw := range req.Attestations {
		att, err := trustchain.AttestationFromJSON(raw)
		if err != nil {
			// undecodable items verify as invalid rather than failing the call
			atts[i] = nil
			continue
		}
		atts[i] = att
	}

	results := trustchain.VerifyBatch(atts, req.FailFast)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": results,
	})
}

// HandleAttestationsBySubject handles GET /api/attestations/subject/{agent_id}.
func (s *Server) HandleAttestationsBySubject(w http.ResponseWriter, r *http.Request) {
	s.handleAttestationQuery(w, r, "/api/attestations/subject/", s.chain.BySubject)
}

// HandleAttestationsByWitness handles GET /api/attestations/witness/{agent_id}.
func (s *Server) HandleAttestationsByWitness(w http.ResponseWriter, r *http.Request) {
	s.handleAttestationQuery(w, r, "/api/attestations/witness/", s.chain.ByWitness)
}

func (s *Server) handleAttestationQuery(w http.ResponseWriter, r *http.Request, prefix string, query func(string) []*trustchain.Attestation) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, prefix)
	if agentID == "" || agentID == r.URL.Path {
		writeJSONError(w, "agent id required", http.StatusBadRequest)
		return
	}

	atts := query(agentID)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"agent_id":     agentID,
		"count":        len(atts),
		"attestations": atts,
	})
}
