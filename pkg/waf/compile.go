package waf

import (
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Policy is an immutable, evaluation-ready snapshot compiled from a
// Document. Regular expressions are compiled once here and reused across
// requests; evaluation never compiles patterns.
type Policy struct {
	// Version identifies this snapshot.
	Version string

	// Settings are the resolved policy settings with defaults applied.
	Settings Settings

	// MatchRules are the compiled custom MatchRules in evaluation order
	// (ascending priority, declaration order on ties).
	MatchRules []*CompiledRule

	// RateRules are the compiled custom RateLimitRules in evaluation order.
	RateRules []*CompiledRule

	// ManagedSets are the referenced rule sets with override lookup built.
	ManagedSets []*CompiledManagedSet

	// Exclusions are the policy's exclusions, unchanged.
	Exclusions []Exclusion
}

// CompiledRule is a custom rule with its conditions compiled.
type CompiledRule struct {
	CustomRule

	// Window is the resolved rate limit window (RateLimitRule only).
	Window time.Duration

	// Conditions mirror MatchConditions with patterns, prefixes and
	// numbers pre-parsed.
	Conditions []*CompiledCondition
}

// CompiledCondition carries the load-time-compiled artifacts for one
// match condition.
type CompiledCondition struct {
	MatchCondition

	// Regexps holds one compiled pattern per value (RegEx operator).
	Regexps []*regexp.Regexp

	// Prefixes holds parsed CIDRs, single addresses widened to /32 or
	// /128 (IPMatch operator).
	Prefixes []netip.Prefix

	// Numbers holds parsed numeric literals (numeric operators).
	Numbers []float64

	// Folded holds the comparison values, lowercased when the condition
	// is case-insensitive (string operators).
	Folded []string

	// Countries holds uppercased ISO codes (GeoMatch operator).
	Countries []string
}

// CompiledManagedSet is a managed rule set reference with per-rule
// override lookup resolved.
type CompiledManagedSet struct {
	ManagedRuleSetRef

	// overrides maps "group/ruleID" to the override for that rule.
	overrides map[string]RuleOverride
}

// Override returns the override for a rule, if one is configured.
func (s *CompiledManagedSet) Override(group, ruleID string) (RuleOverride, bool) {
	o, ok := s.overrides[group+"/"+ruleID]
	return o, ok
}

// Compile validates a Document and produces an immutable Policy snapshot.
// Compilation is all-or-nothing: any invalid rule, pattern, CIDR or
// numeric literal rejects the whole document.
func Compile(doc *Document) (*Policy, error) {
	if doc == nil {
		return nil, &ConfigError{Errors: []string{"nil policy document"}}
	}
	if doc.Version == "" {
		return nil, ErrUnversionedPolicy
	}

	settings := doc.Settings
	applySettingsDefaults(&settings)

	var verrs []string
	if settings.Mode != ModeDetection && settings.Mode != ModePrevention {
		verrs = append(verrs, fmt.Sprintf("unknown mode %q", settings.Mode))
	}
	if settings.AnomalyScoreThreshold <= 0 {
		verrs = append(verrs, "anomaly score threshold must be positive")
	}
	if settings.ManagedRuleOverrideMode != OverrideModeScore && settings.ManagedRuleOverrideMode != OverrideModeEnforce {
		verrs = append(verrs, fmt.Sprintf("unknown managed rule override mode %q", settings.ManagedRuleOverrideMode))
	}

	policy := &Policy{
		Version:  doc.Version,
		Settings: settings,
	}

	seen := make(map[string]bool, len(doc.CustomRules))
	for i := range doc.CustomRules {
		rule := doc.CustomRules[i]
		if rule.Name == "" {
			verrs = append(verrs, fmt.Sprintf("custom rule %d has no name", i))
			continue
		}
		if seen[rule.Name] {
			verrs = append(verrs, fmt.Sprintf("duplicate custom rule name %q", rule.Name))
			continue
		}
		seen[rule.Name] = true

		compiled, err := compileRule(rule)
		if err != nil {
			return nil, err
		}
		switch compiled.RuleType {
		case RuleTypeMatch:
			policy.MatchRules = append(policy.MatchRules, compiled)
		case RuleTypeRateLimit:
			if compiled.RateLimitThreshold <= 0 {
				verrs = append(verrs, fmt.Sprintf("rate limit rule %q: threshold must be positive", rule.Name))
				continue
			}
			policy.RateRules = append(policy.RateRules, compiled)
		default:
			verrs = append(verrs, fmt.Sprintf("rule %q: unknown rule type %q", rule.Name, rule.RuleType))
		}
	}

	for _, ref := range doc.ManagedRuleSets {
		if ref.RuleSetType == "" {
			verrs = append(verrs, "managed rule set reference has no type")
			continue
		}
		set := &CompiledManagedSet{
			ManagedRuleSetRef: ref,
			overrides:         make(map[string]RuleOverride),
		}
		for _, group := range ref.GroupOverrides {
			for _, o := range group.Rules {
				set.overrides[group.GroupName+"/"+o.RuleID] = o
			}
		}
		policy.ManagedSets = append(policy.ManagedSets, set)
	}

	policy.Exclusions = doc.Exclusions
	for i, excl := range doc.Exclusions {
		if excl.Selector == "" && excl.SelectorOperator != SelEqualsAny {
			verrs = append(verrs, fmt.Sprintf("exclusion %d has no selector", i))
		}
	}

	if len(verrs) > 0 {
		return nil, &ConfigError{Version: doc.Version, Errors: verrs}
	}

	// Priority order, declaration order on ties.
	sort.SliceStable(policy.MatchRules, func(i, j int) bool {
		return policy.MatchRules[i].Priority < policy.MatchRules[j].Priority
	})
	sort.SliceStable(policy.RateRules, func(i, j int) bool {
		return policy.RateRules[i].Priority < policy.RateRules[j].Priority
	})

	return policy, nil
}

func applySettingsDefaults(s *Settings) {
	if s.Mode == "" {
		s.Mode = ModePrevention
	}
	if s.DefaultAction == "" {
		s.DefaultAction = ActionAllow
	}
	if s.RequestBodyCheck == nil {
		enabled := true
		s.RequestBodyCheck = &enabled
	}
	if s.MaxRequestBodySizeKB == 0 {
		s.MaxRequestBodySizeKB = 128
	}
	if s.FileUploadLimitMB == 0 {
		s.FileUploadLimitMB = 100
	}
	if s.OversizedBodyAction == "" {
		s.OversizedBodyAction = ActionBlock
	}
	if s.AnomalyScoreThreshold == 0 {
		s.AnomalyScoreThreshold = 5
	}
	if s.ManagedRuleOverrideMode == "" {
		s.ManagedRuleOverrideMode = OverrideModeScore
	}
}

func compileRule(rule CustomRule) (*CompiledRule, error) {
	if rule.RuleType == "" {
		rule.RuleType = RuleTypeMatch
	}
	if rule.Action == "" {
		rule.Action = ActionBlock
	}
	compiled := &CompiledRule{CustomRule: rule}

	if rule.RuleType == RuleTypeRateLimit {
		minutes := rule.RateLimitDurationMinutes
		if minutes <= 0 {
			minutes = 1
		}
		compiled.Window = time.Duration(minutes) * time.Minute
	}

	for i := range rule.MatchConditions {
		cond, err := compileCondition(rule.Name, i, rule.MatchConditions[i])
		if err != nil {
			return nil, err
		}
		compiled.Conditions = append(compiled.Conditions, cond)
	}
	return compiled, nil
}

func compileCondition(ruleName string, idx int, mc MatchCondition) (*CompiledCondition, error) {
	cond := &CompiledCondition{MatchCondition: mc}

	switch mc.Operator {
	case OpRegex:
		for _, v := range mc.Values {
			pattern := v
			if mc.CaseInsensitive {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, &RuleCompileError{RuleName: ruleName, Condition: idx, Pattern: v, Cause: err}
			}
			cond.Regexps = append(cond.Regexps, re)
		}

	case OpIPMatch:
		for _, v := range mc.Values {
			prefix, err := parsePrefix(v)
			if err != nil {
				return nil, &RuleCompileError{RuleName: ruleName, Condition: idx, Pattern: v, Cause: err}
			}
			cond.Prefixes = append(cond.Prefixes, prefix)
		}

	case OpLessThan, OpGreaterThan, OpLessThanOrEqual, OpGreaterThanOrEqual:
		for _, v := range mc.Values {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, &RuleCompileError{RuleName: ruleName, Condition: idx, Pattern: v, Cause: err}
			}
			cond.Numbers = append(cond.Numbers, n)
		}

	case OpGeoMatch:
		for _, v := range mc.Values {
			cond.Countries = append(cond.Countries, strings.ToUpper(v))
		}

	case OpContains, OpStartsWith, OpEndsWith, OpEquals:
		for _, v := range mc.Values {
			if mc.CaseInsensitive {
				v = strings.ToLower(v)
			}
			cond.Folded = append(cond.Folded, v)
		}

	default:
		return nil, &RuleCompileError{
			RuleName:  ruleName,
			Condition: idx,
			Cause:     fmt.Errorf("unknown operator %q", mc.Operator),
		}
	}

	return cond, nil
}

// parsePrefix parses a CIDR, widening a bare address to a full-length
// prefix so IPMatch values can mix both forms.
func parsePrefix(value string) (netip.Prefix, error) {
	if strings.Contains(value, "/") {
		return netip.ParsePrefix(value)
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
