package policy

// Reference presets with fixed thresholds, exposed so property tests can
// pin exact numerics rather than re-deriving them per test. The
// thresholds are frozen at their published boundary semantics: score
// predicates pass at exactly the threshold, age predicates pass at
// exactly the maximum.

// Strict admits only high-trust agents with fresh evidence: trust score
// at least 0.8 and chain age no older than one day. It imposes no
// endorsement or chain-length requirements of its own.
func Strict() Policy {
	return Policy{
		Name:          "strict",
		DefaultAction: ActionDeny,
		Rules: []Rule{
			{
				Name:         "min-trust",
				Requirement:  Requirement{MinTrustScore: f64(0.8)},
				OnFailAction: ActionDeny,
				Priority:     100,
				Description:  "subject must carry at least 0.8 trust score",
			},
			{
				Name:         "max-age",
				Requirement:  Requirement{MaxAgeSeconds: f64(86400)},
				OnFailAction: ActionDeny,
				Priority:     90,
				Description:  "evidence must be no older than one day",
			},
		},
	}
}

// Moderate relaxes Strict's thresholds: trust score at least 0.5 and
// chain age within a week.
func Moderate() Policy {
	return Policy{
		Name:          "moderate",
		DefaultAction: ActionAllow,
		Rules: []Rule{
			{
				Name:         "min-trust",
				Requirement:  Requirement{MinTrustScore: f64(0.5)},
				OnFailAction: ActionDeny,
				Priority:     100,
				Description:  "subject must carry at least 0.5 trust score",
			},
			{
				Name:         "max-age",
				Requirement:  Requirement{MaxAgeSeconds: f64(604800)},
				OnFailAction: ActionDeny,
				Priority:     90,
				Description:  "evidence must be no older than one week",
			},
		},
	}
}

// Permissive denies only near-zero trust (below 0.2) and imposes no age
// limit at all.
func Permissive() Policy {
	return Policy{
		Name:          "permissive",
		DefaultAction: ActionAllow,
		Rules: []Rule{
			{
				Name:         "min-trust",
				Requirement:  Requirement{MinTrustScore: f64(0.2)},
				OnFailAction: ActionDeny,
				Priority:     100,
				Description:  "subject must carry at least 0.2 trust score",
			},
		},
	}
}

// StrictCommerce composes requirements suited to paid task admission: a
// solid trust score, some independent endorsement, and a bounded chain.
func StrictCommerce() Policy {
	return Policy{
		Name:          "strict_commerce",
		DefaultAction: ActionDeny,
		Rules: []Rule{
			{
				Name:         "commerce-trust",
				Requirement:  Requirement{MinTrustScore: f64(0.6), MaxChainLength: i(3)},
				OnFailAction: ActionDeny,
				Priority:     100,
				Description:  "commerce tasks require 0.6 trust within 3 hops",
			},
			{
				Name:         "commerce-endorsements",
				Requirement:  Requirement{MinEndorsements: i(2)},
				OnFailAction: ActionDeny,
				Priority:     90,
				Description:  "commerce tasks require at least 2 endorsements",
			},
		},
	}
}

// OpenDiscovery is tuned for low-stakes discovery/search admission:
// agents below 0.2 trust are throttled rather than denied outright.
func OpenDiscovery() Policy {
	return Policy{
		Name:          "open_discovery",
		DefaultAction: ActionAllow,
		Rules: []Rule{
			{
				Name:         "discovery-floor",
				Requirement:  Requirement{MinTrustScore: f64(0.2)},
				OnFailAction: ActionRateLimit,
				Priority:     10,
				Description:  "near-zero-trust agents are rate-limited rather than denied",
			},
		},
	}
}

// ScopedDelegation builds a policy requiring the context to present every
// scope in scopes, suited to gating delegated-authority actions.
func ScopedDelegation(scopes []string) Policy {
	return Policy{
		Name:          "scoped_delegation",
		DefaultAction: ActionDeny,
		Rules: []Rule{
			{
				Name:         "required-scopes",
				Requirement:  Requirement{RequiredScopes: scopes},
				OnFailAction: ActionDeny,
				Priority:     100,
				Description:  "delegate must present every scope the caller requires",
			},
		},
	}
}
