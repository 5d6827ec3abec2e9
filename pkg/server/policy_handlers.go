package server

import (
	"encoding/json"
	"net/http"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/policy"
)

// HandleEvaluatePolicy handles POST /api/policy/evaluate.
// The caller supplies the agent and scope set; the server fills the
// trust-derived context fields (score, endorsements) from the chain so
// callers cannot claim their own numbers.
func (s *Server) HandleEvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AgentID         string   `json:"agent_id"`
		Scope           string   `json:"scope"`
		Scopes          []string `json:"scopes"`
		ChainLength     int      `json:"chain_length"`
		ChainAgeSeconds float64  `json:"chain_age_seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AgentID == "" {
		writeJSONError(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	endorsements := s.chain.BySubject(req.AgentID)
	issuers := make([]string, 0, len(endorsements))
	seen := make(map[string]bool)
	for _, a := range endorsements {
		if !seen[a.Witness] {
			seen[a.Witness] = true
			issuers = append(issuers, a.Witness)
		}
	}

	ctx := policy.EvaluationContext{
		AgentID:          req.AgentID,
		TrustScore:       s.chain.TrustScore(req.AgentID, req.Scope),
		EndorsementCount: len(endorsements),
		ChainLength:      req.ChainLength,
		Scopes:           req.Scopes,
		IssuerIDs:        issuers,
		ChainAgeSeconds:  req.ChainAgeSeconds,
	}

	decision := s.engine.Evaluate(ctx)

	eventType := audit.EventAccessGranted
	if decision.Action != policy.ActionAllow {
		eventType = audit.EventPolicyViolated
	}
	s.trail.Log(eventType, req.AgentID, map[string]interface{}{
		"action": string(decision.Action),
		"policy": decision.PolicyName,
		"rule":   decision.RuleName,
		"reason": decision.Reason,
	})
	if s.metrics != nil {
		s.metrics.PolicyDecision(string(decision.Action))
		s.metrics.AuditAppended()
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"agent_id": req.AgentID,
		"action":   string(decision.Action),
		"policy":   decision.PolicyName,
		"rule":     decision.RuleName,
		"reason":   decision.Reason,
	})
}
