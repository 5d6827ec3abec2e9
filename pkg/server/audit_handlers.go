package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
)

// HandleSubmitAuditEvent handles POST /api/audit/events: an external
// component recording a lifecycle event on the shared trail.
func (s *Server) HandleSubmitAuditEvent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		EventType string                 `json:"event_type"`
		AgentID   string                 `json:"agent_id"`
		Details   map[string]interface{} `json:"details"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EventType == "" || req.AgentID == "" {
		writeJSONError(w, "event_type and agent_id are required", http.StatusBadRequest)
		return
	}

	entry := s.trail.Log(audit.EventType(req.EventType), req.AgentID, req.Details)
	if s.metrics != nil {
		s.metrics.AuditAppended()
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sequence":   entry.Sequence,
		"entry_hash": entry.EntryHash,
	})
}

// HandleAuditQuery handles GET /api/audit/query with optional agent_id,
// event_type, since, until (RFC3339), and limit parameters.
func (s *Server) HandleAuditQuery(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var since, until *time.Time
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, "since must be RFC3339", http.StatusBadRequest)
			return
		}
		since = &t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSONError(w, "until must be RFC3339", http.StatusBadRequest)
			return
		}
		until = &t
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries := s.trail.Query(q.Get("agent_id"), audit.EventType(q.Get("event_type")), since, until, limit)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// HandleAuditSummary handles GET /api/audit/summary.
func (s *Server) HandleAuditSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	json.NewEncoder(w).Encode(s.trail.Summary())
}

// HandleAuditExport handles GET /api/audit/export: the full trail as a
// JSON array, importable by audit.FromJSON.
func (s *Server) HandleAuditExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := s.trail.ExportJSON()
	if err != nil {
		writeJSONError(w, "failed to export trail", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// HandleAuditProof handles GET /api/audit/proof/{sequence}: a Merkle
// inclusion proof for one entry against the current batch root.
func (s *Server) HandleAuditProof(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/audit/proof/")
	sequence, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, "sequence must be an integer", http.StatusBadRequest)
		return
	}

	proof, err := s.trail.InclusionProof(sequence)
	if err == audit.ErrEntryNotFound {
		writeJSONError(w, "no entry at that sequence", http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, "failed to build proof", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(proof)
}
