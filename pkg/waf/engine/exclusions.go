package engine

import (
	"strings"

	"sentra-hq/bastion/pkg/waf"
)

// ExclusionProcessor decides whether a candidate managed-rule match on a
// concrete request attribute is suppressed by the policy's exclusions.
// Exclusions apply only to managed-rule evaluation; custom rules never
// consult it.
type ExclusionProcessor struct {
	exclusions []waf.Exclusion
}

// NewExclusionProcessor creates a processor over the policy's exclusions.
func NewExclusionProcessor(exclusions []waf.Exclusion) *ExclusionProcessor {
	return &ExclusionProcessor{exclusions: exclusions}
}

// exclusionNamespace maps a match variable to the attribute namespace
// exclusions select in. Variables without named attributes (URI, body,
// method, address) return "" and can never be excluded.
func exclusionNamespace(variable waf.MatchVariable) waf.ExclusionVariable {
	switch variable {
	case waf.VarRequestHeaders:
		return waf.ExclRequestHeaderNames
	case waf.VarQueryArgs:
		return waf.ExclRequestArgNames
	case waf.VarPostArgs:
		return waf.ExclRequestPostArgNames
	case waf.VarCookies:
		return waf.ExclRequestCookieNames
	default:
		return ""
	}
}

// Excluded reports whether a match by the given managed rule on the given
// attribute is suppressed. Scope is honored strictly: an exclusion never
// applies outside its declared rule-set / group / rule-id scope.
func (p *ExclusionProcessor) Excluded(ruleSetType, version, group, ruleID string, variable waf.MatchVariable, attribute string) bool {
	if attribute == "" {
		return false
	}
	namespace := exclusionNamespace(variable)
	if namespace == "" {
		return false
	}

	for i := range p.exclusions {
		excl := &p.exclusions[i]
		if excl.MatchVariable != namespace {
			continue
		}
		if !selectorMatches(excl, variable, attribute) {
			continue
		}
		if !p.inScope(excl, ruleSetType, version, group, ruleID) {
			continue
		}
		return true
	}
	return false
}

// selectorMatches compares the exclusion selector against the concrete
// attribute name. Header names compare case-insensitively; argument and
// cookie names are case-sensitive.
func selectorMatches(excl *waf.Exclusion, variable waf.MatchVariable, attribute string) bool {
	selector := excl.Selector
	if variable == waf.VarRequestHeaders {
		selector = strings.ToLower(selector)
		attribute = strings.ToLower(attribute)
	}

	switch excl.SelectorOperator {
	case waf.SelEquals:
		return attribute == selector
	case waf.SelStartsWith:
		return strings.HasPrefix(attribute, selector)
	case waf.SelEndsWith:
		return strings.HasSuffix(attribute, selector)
	case waf.SelContains:
		return strings.Contains(attribute, selector)
	case waf.SelEqualsAny:
		return true
	default:
		return false
	}
}

// inScope checks the exclusion's managed rule set scope. An exclusion
// with no listed rule sets applies to all managed evaluation.
func (p *ExclusionProcessor) inScope(excl *waf.Exclusion, ruleSetType, version, group, ruleID string) bool {
	if len(excl.ManagedRuleSets) == 0 {
		return true
	}
	for _, set := range excl.ManagedRuleSets {
		if set.RuleSetType != ruleSetType {
			continue
		}
		if set.RuleSetVersion != "" && set.RuleSetVersion != version {
			continue
		}
		if len(set.RuleGroups) == 0 {
			return true
		}
		for _, g := range set.RuleGroups {
			if g.GroupName != group {
				continue
			}
			if len(g.RuleIDs) == 0 {
				return true
			}
			for _, id := range g.RuleIDs {
				if id == ruleID {
					return true
				}
			}
		}
	}
	return false
}
