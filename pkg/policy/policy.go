package policy

import "sort"

// Action is the outcome of evaluating a Policy or the composed PolicyEngine.
type Action string

const (
	ActionAllow         Action = "ALLOW"
	ActionDeny          Action = "DENY"
	ActionRequireReview Action = "REQUIRE_REVIEW"
	ActionRateLimit     Action = "RATE_LIMIT"
)

// severity orders actions from laxest to strictest; higher wins under
// composition. DENY > RATE_LIMIT > REQUIRE_REVIEW > ALLOW.
var severity = map[Action]int{
	ActionAllow:         0,
	ActionRequireReview: 1,
	ActionRateLimit:     2,
	ActionDeny:          3,
}

func stricter(a, b Action) Action {
	if severity[a] >= severity[b] {
		return a
	}
	return b
}

// Rule pairs a Requirement with the action to take when it fails.
type Rule struct {
	Name          string
	Requirement   Requirement
	OnFailAction  Action
	Priority      int
	Description   string
}

// Policy is a named, prioritized set of rules plus a default action used
// when it carries no rules at all.
type Policy struct {
	Name          string
	DefaultAction Action
	Rules         []Rule
}

// Decision is the outcome of evaluating a single Policy or a composed
// PolicyEngine, carrying enough context for the audit trail.
type Decision struct {
	Action     Action
	PolicyName string
	RuleName   string
	Reason     string
	AgentID    string
}

// Evaluate sorts rules by priority descending and returns the on-fail
// action of the first rule whose requirement fails. If every rule passes,
// returns ALLOW. With zero rules, returns the policy's default action.
func (p Policy) Evaluate(ctx EvaluationContext) Decision {
	if len(p.Rules) == 0 {
		return Decision{Action: p.DefaultAction, PolicyName: p.Name, Reason: "no rules configured", AgentID: ctx.AgentID}
	}

	rules := make([]Rule, len(p.Rules))
	copy(rules, p.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	for _, r := range rules {
		if ok, reason := r.Requirement.Evaluate(ctx); !ok {
			return Decision{Action: r.OnFailAction, PolicyName: p.Name, RuleName: r.Name, Reason: reason, AgentID: ctx.AgentID}
		}
	}
	return Decision{Action: ActionAllow, PolicyName: p.Name, Reason: "all rules passed", AgentID: ctx.AgentID}
}

// Engine composes zero or more policies by strictest-wins. With zero
// policies configured, every evaluation returns DENY ("no policies
// configured"): admission fails closed, never open.
type Engine struct {
	Policies []Policy
}

// NewEngine constructs an Engine over the given policies.
func NewEngine(policies ...Policy) *Engine {
	return &Engine{Policies: policies}
}

// Evaluate runs every configured policy and returns the strictest
// resulting Decision. Ties in severity keep the first policy's decision
// encountered in evaluation order.
func (e *Engine) Evaluate(ctx EvaluationContext) Decision {
	if len(e.Policies) == 0 {
		return Decision{Action: ActionDeny, Reason: "no policies configured", AgentID: ctx.AgentID}
	}

	strictest := e.Policies[0].Evaluate(ctx)
	for _, p := range e.Policies[1:] {
		d := p.Evaluate(ctx)
		if severity[d.Action] > severity[strictest.Action] {
			strictest = d
		}
	}
	return strictest
}
