package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/delegation"
)

// HandleAddDelegation handles POST /api/delegations: a fully signed wire
// delegation, validated against its parent chain and indexed.
func (s *Server) HandleAddDelegation(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := json.RawMessage{}
	if !decodeBody(w, r, &body) {
		return
	}
	d, err := delegation.FromJSON(body)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	if err := s.delegations.Add(d); err != nil {
		if s.metrics != nil {
			s.metrics.DelegationAdd("rejected")
		}
		var inv *delegation.ErrInvariantViolation
		switch {
		case errors.Is(err, delegation.ErrParentNotFound):
			writeJSONError(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &inv):
			writeJSONError(w, inv.Error(), http.StatusBadRequest)
		default:
			writeJSONError(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	s.trail.Log(audit.EventDelegationCreated, d.Principal, map[string]interface{}{
		"delegation_id": d.DelegationID,
		"delegate":      d.Delegate,
		"scopes":        strings.Join(d.Scopes, ","),
		"depth":         d.Depth,
	})
	if s.metrics != nil {
		s.metrics.DelegationAdd("accepted")
		s.metrics.AuditAppended()
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"delegation_id": d.DelegationID,
		"status":        "added",
	})
}

// HandleVerifyDelegationChain handles GET /api/delegations/verify/{delegation_id}.
func (s *Server) HandleVerifyDelegationChain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	delegationID := strings.TrimPrefix(r.URL.Path, "/api/delegations/verify/")
	if delegationID == "" || delegationID == r.URL.Path {
		writeJSONError(w, "delegation id required", http.StatusBadRequest)
		return
	}
	if _, ok := s.delegations.Get(delegationID); !ok {
		writeJSONError(w, "delegation not found", http.StatusNotFound)
		return
	}

	valid, reason := s.delegations.VerifyChain(delegationID)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"delegation_id": delegationID,
		"valid":         valid,
		"reason":        reason,
	})
}

// HandleDelegationsForDelegate handles GET /api/delegations/delegate/{agent_id}?scope=.
func (s *Server) HandleDelegationsForDelegate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	delegateID := strings.TrimPrefix(r.URL.Path, "/api/delegations/delegate/")
	if delegateID == "" || delegateID == r.URL.Path {
		writeJSONError(w, "delegate id required", http.StatusBadRequest)
		return
	}

	dels := s.delegations.DelegationsFor(delegateID, r.URL.Query().Get("scope"))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"delegate_id": delegateID,
		"count":       len(dels),
		"delegations": dels,
	})
}

// HandleIsAuthorized handles GET /api/delegations/authorized?delegate=&scope=.
func (s *Server) HandleIsAuthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	delegateID := r.URL.Query().Get("delegate")
	scope := r.URL.Query().Get("scope")
	if delegateID == "" || scope == "" {
		writeJSONError(w, "delegate and scope are required", http.StatusBadRequest)
		return
	}

	authorized := s.delegations.IsAuthorized(delegateID, scope)
	eventType := audit.EventAccessGranted
	if !authorized {
		eventType = audit.EventAccessDenied
	}
	s.trail.Log(eventType, delegateID, map[string]interface{}{
		"scope": scope,
	})
	if s.metrics != nil {
		s.metrics.AuditAppended()
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"delegate_id": delegateID,
		"scope":       scope,
		"authorized":  authorized,
	})
}
