package catalog

import (
	"regexp"
	"strings"

	"sentra-hq/bastion/pkg/waf"
)

// Severity classifies a managed rule and determines its anomaly score
// contribution.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityNotice   Severity = "notice"
)

// Score returns the anomaly score weight for the severity. Unknown
// severities score as notice.
func (s Severity) Score() int {
	switch Severity(strings.ToLower(string(s))) {
	case SeverityCritical:
		return 5
	case SeverityError:
		return 4
	case SeverityWarning:
		return 3
	default:
		return 2
	}
}

// Target names one request attribute a managed rule inspects. An empty
// selector means every value of that attribute kind.
type Target struct {
	Variable waf.MatchVariable `yaml:"variable"`
	Selector string            `yaml:"selector,omitempty"`
}

// Rule is one managed rule body: a pattern applied to a set of target
// attributes, with a severity weight and a default action.
type Rule struct {
	ID          string     `yaml:"id"`
	GroupName   string     `yaml:"-"`
	Description string     `yaml:"description,omitempty"`
	Severity    Severity   `yaml:"severity"`
	Pattern     string     `yaml:"pattern"`
	Targets     []Target   `yaml:"targets"`
	Action      waf.Action `yaml:"action,omitempty"`

	re *regexp.Regexp
}

// Regexp returns the rule's compiled pattern.
func (r *Rule) Regexp() *regexp.Regexp {
	return r.re
}

// Group is a named collection of rules within a rule set.
type Group struct {
	Name  string  `yaml:"name"`
	Rules []*Rule `yaml:"rules"`
}

// RuleSet is one versioned managed rule set.
type RuleSet struct {
	Type    string   `yaml:"rule_set_type"`
	Version string   `yaml:"version"`
	Bot     bool     `yaml:"bot,omitempty"`
	Groups  []*Group `yaml:"groups"`

	index map[string]*Rule
}

// Rule returns the rule with the given id, if present.
func (rs *RuleSet) Rule(id string) (*Rule, bool) {
	r, ok := rs.index[id]
	return r, ok
}

// Catalog indexes loaded rule sets by (type, version).
type Catalog struct {
	sets map[string]*RuleSet
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{sets: make(map[string]*RuleSet)}
}

// RuleSet returns the rule set with the given type and version.
func (c *Catalog) RuleSet(ruleSetType, version string) (*RuleSet, bool) {
	rs, ok := c.sets[setKey(ruleSetType, version)]
	return rs, ok
}

// Lookup returns one rule by (ruleSetType, version, ruleId).
func (c *Catalog) Lookup(ruleSetType, version, ruleID string) (*Rule, bool) {
	rs, ok := c.RuleSet(ruleSetType, version)
	if !ok {
		return nil, false
	}
	return rs.Rule(ruleID)
}

// RuleSets returns all loaded rule sets.
func (c *Catalog) RuleSets() []*RuleSet {
	out := make([]*RuleSet, 0, len(c.sets))
	for _, rs := range c.sets {
		out = append(out, rs)
	}
	return out
}

func setKey(ruleSetType, version string) string {
	return ruleSetType + "/" + version
}
