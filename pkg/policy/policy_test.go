package policy

import "testing"

func TestRequirementEmptyPassesAnyContext(t *testing.T) {
	req := Requirement{}
	ok, reason := req.Evaluate(EvaluationContext{})
	if !ok {
		t.Fatalf("empty requirement should pass, got reason %q", reason)
	}
}

func TestRequirementConjunction(t *testing.T) {
	req := Requirement{MinTrustScore: f64(0.5), MinEndorsements: i(2)}

	ok, _ := req.Evaluate(EvaluationContext{TrustScore: 0.6, EndorsementCount: 2})
	if !ok {
		t.Fatal("expected pass when both predicates satisfied")
	}

	ok, reason := req.Evaluate(EvaluationContext{TrustScore: 0.6, EndorsementCount: 1})
	if ok {
		t.Fatal("expected failure on endorsement count")
	}
	if reason == "" {
		t.Fatal("expected a failure reason")
	}
}

func TestPolicyZeroRulesUsesDefault(t *testing.T) {
	p := Policy{Name: "empty", DefaultAction: ActionAllow}
	d := p.Evaluate(EvaluationContext{})
	if d.Action != ActionAllow {
		t.Fatalf("expected ALLOW default, got %s", d.Action)
	}
}

func TestPolicyFirstFailingRuleByPriority(t *testing.T) {
	p := Policy{
		Name:          "p",
		DefaultAction: ActionAllow,
		Rules: []Rule{
			{Name: "low", Requirement: Requirement{MinTrustScore: f64(0.9)}, OnFailAction: ActionRequireReview, Priority: 1},
			{Name: "high", Requirement: Requirement{MinTrustScore: f64(0.9)}, OnFailAction: ActionDeny, Priority: 100},
		},
	}
	d := p.Evaluate(EvaluationContext{TrustScore: 0.1})
	if d.Action != ActionDeny || d.RuleName != "high" {
		t.Fatalf("expected DENY from highest-priority failing rule, got %+v", d)
	}
}

func TestPolicyAllPassYieldsAllow(t *testing.T) {
	p := Policy{
		Name:          "p",
		DefaultAction: ActionDeny,
		Rules: []Rule{
			{Name: "r", Requirement: Requirement{MinTrustScore: f64(0.1)}, OnFailAction: ActionDeny, Priority: 1},
		},
	}
	d := p.Evaluate(EvaluationContext{TrustScore: 0.9})
	if d.Action != ActionAllow {
		t.Fatalf("expected ALLOW, got %s", d.Action)
	}
}

func TestEngineZeroPoliciesDeniesClosed(t *testing.T) {
	e := NewEngine()
	d := e.Evaluate(EvaluationContext{AgentID: "agent:x"})
	if d.Action != ActionDeny {
		t.Fatalf("expected fail-closed DENY, got %s", d.Action)
	}
}

func TestStrictPresetBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		ctx    EvaluationContext
		action Action
	}{
		{"high trust fresh, no endorsements needed", EvaluationContext{TrustScore: 0.9, ChainAgeSeconds: 3600}, ActionAllow},
		{"low trust", EvaluationContext{TrustScore: 0.5, ChainAgeSeconds: 100}, ActionDeny},
		{"stale attestation", EvaluationContext{TrustScore: 0.9, ChainAgeSeconds: 100000}, ActionDeny},
		{"score exactly at threshold", EvaluationContext{TrustScore: 0.8, ChainAgeSeconds: 100}, ActionAllow},
		{"score just below threshold", EvaluationContext{TrustScore: 0.79, ChainAgeSeconds: 100}, ActionDeny},
		{"age exactly at maximum", EvaluationContext{TrustScore: 0.9, ChainAgeSeconds: 86400}, ActionAllow},
		{"age just over maximum", EvaluationContext{TrustScore: 0.9, ChainAgeSeconds: 86401}, ActionDeny},
		{"zero score", EvaluationContext{TrustScore: 0.0}, ActionDeny},
		{"perfect score", EvaluationContext{TrustScore: 1.0, ChainAgeSeconds: 0}, ActionAllow},
		{"negative age does not trip the age rule", EvaluationContext{TrustScore: 0.9, ChainAgeSeconds: -1}, ActionAllow},
	}
	p := Strict()
	for _, c := range cases {
		if d := p.Evaluate(c.ctx); d.Action != c.action {
			t.Errorf("%s: got %s, want %s", c.name, d.Action, c.action)
		}
	}
}

func TestModeratePresetBoundaries(t *testing.T) {
	p := Moderate()
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.6, ChainAgeSeconds: 300000}); d.Action != ActionAllow {
		t.Errorf("medium trust within a week: got %s, want ALLOW", d.Action)
	}
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.3, ChainAgeSeconds: 100}); d.Action != ActionDeny {
		t.Errorf("low trust: got %s, want DENY", d.Action)
	}
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.7, ChainAgeSeconds: 700000}); d.Action != ActionDeny {
		t.Errorf("old attestation: got %s, want DENY", d.Action)
	}
}

func TestPermissivePresetBoundaries(t *testing.T) {
	p := Permissive()
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.3}); d.Action != ActionAllow {
		t.Errorf("low trust: got %s, want ALLOW", d.Action)
	}
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.1}); d.Action != ActionDeny {
		t.Errorf("very low trust: got %s, want DENY", d.Action)
	}
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.5, ChainAgeSeconds: 999999999}); d.Action != ActionAllow {
		t.Errorf("no age limit: got %s, want ALLOW", d.Action)
	}
}

func TestStrictCommercePreset(t *testing.T) {
	p := StrictCommerce()
	trusted := EvaluationContext{
		AgentID:          "agent:trusted",
		TrustScore:       0.9,
		EndorsementCount: 5,
		ChainLength:      2,
		ChainAgeSeconds:  3600,
	}
	if d := p.Evaluate(trusted); d.Action != ActionAllow {
		t.Errorf("high trust: got %s, want ALLOW", d.Action)
	}
	if d := p.Evaluate(EvaluationContext{AgentID: "agent:untrusted", TrustScore: 0.3}); d.Action != ActionDeny {
		t.Errorf("low trust: got %s, want DENY", d.Action)
	}
}

func TestOpenDiscoveryPreset(t *testing.T) {
	p := OpenDiscovery()
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.5}); d.Action != ActionAllow {
		t.Errorf("basic: got %s, want ALLOW", d.Action)
	}
	if d := p.Evaluate(EvaluationContext{TrustScore: 0.1}); d.Action != ActionRateLimit {
		t.Errorf("very low trust: got %s, want RATE_LIMIT", d.Action)
	}
}

// PERMISSIVE allows a mid-trust, short-lived chain; STRICT denies the same
// context outright. The engine must side with STRICT.
func TestEngineStrictestWins(t *testing.T) {
	e := NewEngine(Permissive(), Strict())
	ctx := EvaluationContext{AgentID: "agent:x", TrustScore: 0.5, ChainAgeSeconds: 100}
	d := e.Evaluate(ctx)
	if d.Action != ActionDeny {
		t.Fatalf("expected DENY (strictest of permissive-allow/strict-deny), got %s", d.Action)
	}
}

func TestEngineCompositionOrderIndependent(t *testing.T) {
	ctx := EvaluationContext{TrustScore: 0.5, ChainAgeSeconds: 100}
	a := NewEngine(Strict(), Permissive()).Evaluate(ctx)
	b := NewEngine(Permissive(), Strict()).Evaluate(ctx)
	if a.Action != b.Action {
		t.Fatalf("composition should be order-independent on the winning action: %s vs %s", a.Action, b.Action)
	}
}

func TestScopedDelegationRequiresEveryScope(t *testing.T) {
	p := ScopedDelegation([]string{"deploy", "review"})
	d := p.Evaluate(EvaluationContext{Scopes: []string{"deploy"}})
	if d.Action != ActionDeny {
		t.Fatalf("expected DENY for missing scope, got %s", d.Action)
	}
	d = p.Evaluate(EvaluationContext{Scopes: []string{"deploy", "review", "extra"}})
	if d.Action != ActionAllow {
		t.Fatalf("expected ALLOW when all required scopes present, got %s", d.Action)
	}
}
