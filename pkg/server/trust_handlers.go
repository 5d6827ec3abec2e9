package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
)

// HandleTrustScore handles GET /api/trust/score/{agent_id}?scope=.
func (s *Server) HandleTrustScore(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	agentID := strings.TrimPrefix(r.URL.Path, "/api/trust/score/")
	if agentID == "" || agentID == r.URL.Path {
		writeJSONError(w, "agent id required", http.StatusBadRequest)
		return
	}
	scope := r.URL.Query().Get("scope")

	score := s.chain.TrustScore(agentID, scope)
	s.trail.Log(audit.EventTrustScoreComputed, agentID, map[string]interface{}{
		"scope": scope,
		"score": score,
	})
	if s.metrics != nil {
		s.metrics.TrustScoreQueried()
		s.metrics.AuditAppended()
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"agent_id":     agentID,
		"scope":        scope,
		"trust_score":  score,
		"endorsements": len(s.chain.BySubject(agentID)),
	})
}

// HandleChainTrust handles GET /api/trust/chain?source=&target=&max_hops=.
func (s *Server) HandleChainTrust(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		writeJSONError(w, "source and target are required", http.StatusBadRequest)
		return
	}

	maxHops := 0
	if raw := r.URL.Query().Get("max_hops"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "max_hops must be a non-negative integer", http.StatusBadRequest)
			return
		}
		maxHops = n
	}

	score := s.chain.ChainTrust(source, target, maxHops)
	if s.metrics != nil {
		s.metrics.ChainTrustQueried()
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"source":      source,
		"target":      target,
		"chain_trust": score,
	})
}
