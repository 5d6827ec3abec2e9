// Package server is the REST projection of the trust substrate core: thin
// HTTP handlers over the in-memory chain, registries, policy engine, and
// audit trail. Every handler is a direct mapping onto one core operation;
// nothing in here holds state of its own.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/audit"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/config"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/delegation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/identity"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/metrics"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/policy"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/revocation"
	"github.com/Danieliushka/isnad-ref-impl-sub001/pkg/trustchain"
)

// maxBodyBytes bounds request bodies; anything larger is 413.
const maxBodyBytes = 1 << 20

// Authenticator authenticates a presented API key for write endpoints.
// database.APIKeyRepository satisfies this via a small adapter; tests use
// a func literal.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, key string) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, key string) error {
	return f(ctx, key)
}

// Server wires the core components to their HTTP projections.
type Server struct {
	chain       *trustchain.Chain
	revocations *revocation.Registry
	delegations *delegation.Registry
	rotations   *identity.RotationRegistry
	trail       *audit.Trail
	engine      *policy.Engine

	metrics *metrics.Registry
	auth    Authenticator
	cfg     *config.Config
	logger  *log.Logger

	startedAt time.Time
}

// Option is a functional option for configuring the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAuthenticator guards write endpoints with API key authentication.
// Without one, writes are open and a warning is logged at construction;
// acceptable for local development only.
func WithAuthenticator(a Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithMetrics attaches a metrics registry; request counts and core
// operation counters are recorded through it.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// New constructs a Server over the given core components. All components
// must be non-nil; the policy engine may carry zero policies (it then
// denies everything, per the engine's own contract).
func New(cfg *config.Config, chain *trustchain.Chain, revs *revocation.Registry,
	dels *delegation.Registry, rots *identity.RotationRegistry,
	trail *audit.Trail, engine *policy.Engine, opts ...Option) *Server {

	s := &Server{
		chain:       chain,
		revocations: revs,
		delegations: dels,
		rotations:   rots,
		trail:       trail,
		engine:      engine,
		cfg:         cfg,
		logger:      log.New(log.Writer(), "[server] ", log.LstdFlags),
		startedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.logger.Println("WARNING: no authenticator configured; write endpoints are open")
	}
	return s
}

// Routes builds the full ServeMux for the service surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.HandleHealth)

	mux.HandleFunc("/api/agents", s.writeGuard(s.HandleCreateAgent))
	mux.HandleFunc("/api/rotations", s.writeGuard(s.HandleSubmitRotation))

	mux.HandleFunc("/api/attestations", s.writeGuard(s.HandleAddAttestation))
	mux.HandleFunc("/api/attestations/verify", s.HandleVerifyAttestation)
	mux.HandleFunc("/api/attestations/verify-batch", s.HandleVerifyBatch)
	mux.HandleFunc("/api/attestations/subject/", s.HandleAttestationsBySubject)
	mux.HandleFunc("/api/attestations/witness/", s.HandleAttestationsByWitness)

	mux.HandleFunc("/api/trust/score/", s.HandleTrustScore)
	mux.HandleFunc("/api/trust/chain", s.HandleChainTrust)

	mux.HandleFunc("/api/revocations", s.writeGuard(s.HandleRevoke))
	mux.HandleFunc("/api/revocations/", s.HandleRevocationsByTarget)

	mux.HandleFunc("/api/delegations", s.writeGuard(s.HandleAddDelegation))
	mux.HandleFunc("/api/delegations/verify/", s.HandleVerifyDelegationChain)
	mux.HandleFunc("/api/delegations/delegate/", s.HandleDelegationsForDelegate)
	mux.HandleFunc("/api/delegations/authorized", s.HandleIsAuthorized)

	mux.HandleFunc("/api/policy/evaluate", s.HandleEvaluatePolicy)

	mux.HandleFunc("/api/audit/events", s.writeGuard(s.HandleSubmitAuditEvent))
	mux.HandleFunc("/api/audit/query", s.HandleAuditQuery)
	mux.HandleFunc("/api/audit/summary", s.HandleAuditSummary)
	mux.HandleFunc("/api/audit/export", s.HandleAuditExport)
	mux.HandleFunc("/api/audit/proof/", s.HandleAuditProof)

	mux.HandleFunc("/api/bundle/export", s.HandleBundleExport)
	mux.HandleFunc("/api/bundle/import", s.writeGuard(s.HandleBundleImport))

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// Handler wraps Routes with the outermost middleware: request id,
// body-size cap, and request metrics.
func (s *Server) Handler() http.Handler {
	mux := s.Routes()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(sw, r)

		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(r.Method, r.URL.Path,
				strconv.Itoa(sw.status), time.Since(start).Seconds())
		}
	})
}

// statusWriter records the status code written by a handler.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// writeGuard requires API key authentication on a write endpoint when an
// authenticator is configured.
func (s *Server) writeGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.auth != nil {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				writeJSONError(w, "missing API key", http.StatusUnauthorized)
				return
			}
			if err := s.auth.Authenticate(r.Context(), key); err != nil {
				writeJSONError(w, "invalid API key", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	intact, _ := s.trail.VerifyIntegrity()
	status := "ok"
	code := http.StatusOK
	if !intact {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":          status,
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
		"attestations":    len(s.chain.Attestations()),
		"audit_entries":   s.trail.Size(),
		"audit_integrity": intact,
	})
}

// writeJSONError writes a JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// decodeBody decodes a JSON request body into dst, translating oversize
// and malformed bodies to their HTTP statuses. Returns false after
// writing the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err.Error() == "http: request body too large" {
			writeJSONError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}
