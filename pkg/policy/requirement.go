// Package policy implements the declarative admission engine: requirements
// (predicates over an evaluation context), rules (a requirement paired with
// a fail action and priority), policies (grouped, prioritized rules), and
// the engine that composes multiple policies by strictest-wins.
package policy

// EvaluationContext is the read-only view a Requirement's predicates are
// evaluated against. Callers (typically a service wrapper) assemble it from
// a trustchain.Chain, a delegation.Registry, and an audit.Trail query.
type EvaluationContext struct {
	AgentID           string
	TrustScore        float64
	EndorsementCount  int
	ChainLength       int
	Scopes            []string
	IssuerIDs         []string
	ChainAgeSeconds   float64
}

// Requirement is a set of optional predicates; an unset field is vacuously
// true. All present predicates must pass (conjunction); an entirely empty
// Requirement passes any context.
type Requirement struct {
	MinTrustScore      *float64
	MinEndorsements    *int
	MaxChainLength     *int
	RequiredScopes     []string
	RequiredIssuerIDs  []string
	MaxAgeSeconds      *float64
}

// Evaluate reports whether ctx satisfies every present predicate, and, on
// failure, a human-readable reason naming the first predicate that failed.
func (req Requirement) Evaluate(ctx EvaluationContext) (bool, string) {
	if req.MinTrustScore != nil && ctx.TrustScore < *req.MinTrustScore {
		return false, "trust_score below minimum"
	}
	if req.MinEndorsements != nil && ctx.EndorsementCount < *req.MinEndorsements {
		return false, "endorsement_count below minimum"
	}
	if req.MaxChainLength != nil && ctx.ChainLength > *req.MaxChainLength {
		return false, "chain_length exceeds maximum"
	}
	if len(req.RequiredScopes) > 0 && !containsAll(ctx.Scopes, req.RequiredScopes) {
		return false, "missing required scope"
	}
	if len(req.RequiredIssuerIDs) > 0 && !intersects(ctx.IssuerIDs, req.RequiredIssuerIDs) {
		return false, "no required issuer present"
	}
	if req.MaxAgeSeconds != nil && ctx.ChainAgeSeconds > *req.MaxAgeSeconds {
		return false, "chain age exceeds maximum"
	}
	return true, ""
}

func containsAll(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func intersects(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, s := range have {
		set[s] = true
	}
	for _, w := range want {
		if set[w] {
			return true
		}
	}
	return false
}

// f64 and i are small constructor helpers for building Requirement literals
// without spelling out &x each time.
func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }
