package engine

import (
	"time"

	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/catalog"
)

// Tier identifies which evaluation tier produced a rule match.
type Tier string

const (
	TierCustom    Tier = "custom"
	TierRateLimit Tier = "rate_limit"
	TierBot       Tier = "bot"
	TierManaged   Tier = "managed"
)

// RuleMatch records one fired rule (or condition set) within a verdict.
type RuleMatch struct {
	// RuleID is the custom rule name or managed rule id.
	RuleID string

	// RuleSet and RuleGroup locate a managed rule; empty for custom rules.
	RuleSet   string
	RuleGroup string

	// Tier is the evaluation tier the match occurred in.
	Tier Tier

	// Action is the rule's configured (or overridden) action.
	Action waf.Action

	// Severity and Score are set for managed-rule matches.
	Severity catalog.Severity
	Score    int

	// Variable and Attribute identify what was matched: the inspected
	// request variable and, where applicable, the concrete header /
	// argument / cookie name.
	Variable  waf.MatchVariable
	Attribute string

	// Matched is the matched substring and Offset its position within
	// the inspected value, recorded for audit on managed-rule matches.
	Matched string
	Offset  int
}

// Verdict is the engine's decision for one request. It is a pure output:
// the only side effect of evaluation beyond it is the event emitter call.
type Verdict struct {
	// Action is the final enforcement outcome. Never Block when the
	// policy mode is Detection.
	Action waf.Action

	// Mode is the policy mode the decision was computed under.
	Mode waf.Mode

	// PolicyVersion identifies the snapshot evaluated against.
	PolicyVersion string

	// MatchedRules lists every rule that fired, in evaluation order.
	MatchedRules []RuleMatch

	// AnomalyScore is the cumulative managed-rule score, when scored
	// evaluation engaged.
	AnomalyScore int

	// RedirectURL is set when Action is Redirect.
	RedirectURL string

	// Reason is a short human-readable explanation of the outcome.
	Reason string

	// EvaluationTime is how long evaluation took.
	EvaluationTime time.Duration
}

// RuleIDs returns the ids of all matched rules in order.
func (v *Verdict) RuleIDs() []string {
	ids := make([]string, 0, len(v.MatchedRules))
	for _, m := range v.MatchedRules {
		ids = append(ids, m.RuleID)
	}
	return ids
}

// Blocked reports whether the verdict enforces a block.
func (v *Verdict) Blocked() bool {
	return v.Action == waf.ActionBlock
}
