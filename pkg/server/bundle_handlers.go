package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/record"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

// HandleBundleExport handles GET /api/bundle/export: the chain's current
// attestation set as a portable isnad-bundle/v1 document.
func (s *Server) HandleBundleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := s.chain.ExportJSON()
	if err != nil {
		writeJSONError(w, "failed to export bundle", http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// HandleBundleImport handles POST /api/bundle/import: merges a bundle's
// attestations into the live chain. Unsigned bundles are filtered
// per-item; a signed bundle that fails verification is rejected whole.
func (s *Server) HandleBundleImport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	imported, err := trustchain.Import(data, s.revocations, record.Verify)
	switch {
	case errors.Is(err, trustchain.ErrUnsupportedBundleVersion):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case errors.Is(err, trustchain.ErrBundleSignatureInvalid):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeJSONError(w, "invalid bundle", http.StatusBadRequest)
		return
	}

	added := 0
	for _, a := range imported.Attestations() {
		if s.chain.Add(a) {
			added++
		}
	}
	if s.metrics != nil {
		for i := 0; i < added; i++ {
			s.metrics.AttestationAdded()
		}
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"imported": added,
		"status":   "merged",
	})
}
