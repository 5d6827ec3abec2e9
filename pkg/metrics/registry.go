// Package metrics wraps a Prometheus registry with the trust substrate's
// application metrics: attestation throughput, score queries, policy
// decisions, revocations, and audit appends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a dedicated Prometheus registry so embedding hosts can
// run several instances without default-registry collisions.
type Registry struct {
	registry *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Trust chain metrics
	attestationsAddedTotal    prometheus.Counter
	attestationsRejectedTotal *prometheus.CounterVec
	trustScoreQueriesTotal    prometheus.Counter
	chainTrustQueriesTotal    prometheus.Counter

	// Registry metrics
	revocationsTotal prometheus.Counter
	delegationsTotal *prometheus.CounterVec

	// Policy metrics
	policyDecisionsTotal *prometheus.CounterVec

	// Audit metrics
	auditAppendsTotal prometheus.Counter
}

// NewRegistry creates a metrics registry with all application metrics
// registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isnad_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "isnad_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		attestationsAddedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isnad_attestations_added_total",
			Help: "Attestations verified and appended to the trust chain",
		}),
		attestationsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isnad_attestations_rejected_total",
				Help: "Attestations rejected at add time",
			},
			[]string{"reason"},
		),
		trustScoreQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isnad_trust_score_queries_total",
			Help: "Direct trust score computations served",
		}),
		chainTrustQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isnad_chain_trust_queries_total",
			Help: "Transitive chain trust computations served",
		}),

		revocationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isnad_revocations_total",
			Help: "Revocation entries recorded",
		}),
		delegationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isnad_delegations_total",
				Help: "Delegation registry add attempts",
			},
			[]string{"outcome"},
		),

		policyDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isnad_policy_decisions_total",
				Help: "Policy engine decisions by resulting action",
			},
			[]string{"action"},
		),

		auditAppendsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "isnad_audit_appends_total",
			Help: "Audit trail entries appended",
		}),
	}

	reg.MustRegister(
		r.httpRequestsTotal,
		r.httpRequestDuration,
		r.attestationsAddedTotal,
		r.attestationsRejectedTotal,
		r.trustScoreQueriesTotal,
		r.chainTrustQueriesTotal,
		r.revocationsTotal,
		r.delegationsTotal,
		r.policyDecisionsTotal,
		r.auditAppendsTotal,
	)
	return r
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served request.
func (r *Registry) ObserveHTTPRequest(method, path, status string, seconds float64) {
	r.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// AttestationAdded counts a successful chain append.
func (r *Registry) AttestationAdded() { r.attestationsAddedTotal.Inc() }

// AttestationRejected counts a rejected add, labeled by reason
// ("signature", "revoked", "invalid").
func (r *Registry) AttestationRejected(reason string) {
	r.attestationsRejectedTotal.WithLabelValues(reason).Inc()
}

// TrustScoreQueried counts a direct score computation.
func (r *Registry) TrustScoreQueried() { r.trustScoreQueriesTotal.Inc() }

// ChainTrustQueried counts a transitive trust computation.
func (r *Registry) ChainTrustQueried() { r.chainTrustQueriesTotal.Inc() }

// RevocationRecorded counts a recorded revocation entry.
func (r *Registry) RevocationRecorded() { r.revocationsTotal.Inc() }

// DelegationAdd counts a delegation add attempt by outcome
// ("accepted", "rejected").
func (r *Registry) DelegationAdd(outcome string) {
	r.delegationsTotal.WithLabelValues(outcome).Inc()
}

// PolicyDecision counts a policy engine decision by action.
func (r *Registry) PolicyDecision(action string) {
	r.policyDecisionsTotal.WithLabelValues(action).Inc()
}

// AuditAppended counts an audit trail append.
func (r *Registry) AuditAppended() { r.auditAppendsTotal.Inc() }
