package waf

import (
	"errors"
	"testing"
	"time"
)

func validDocument() *Document {
	return &Document{
		Version: "v1",
		CustomRules: []CustomRule{
			{
				Name:     "block-admin",
				Priority: 10,
				RuleType: RuleTypeMatch,
				Action:   ActionBlock,
				MatchConditions: []MatchCondition{
					{Variable: VarRequestURI, Operator: OpStartsWith, Values: []string{"/admin"}},
				},
			},
		},
	}
}

func TestCompile_Defaults(t *testing.T) {
	policy, err := Compile(validDocument())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	s := policy.Settings
	if s.Mode != ModePrevention {
		t.Errorf("Expected default mode Prevention, got %q", s.Mode)
	}
	if s.DefaultAction != ActionAllow {
		t.Errorf("Expected default action Allow, got %q", s.DefaultAction)
	}
	if s.RequestBodyCheck == nil || !*s.RequestBodyCheck {
		t.Error("Expected body check enabled by default")
	}
	if s.MaxRequestBodySizeKB != 128 {
		t.Errorf("Expected default body size 128KB, got %d", s.MaxRequestBodySizeKB)
	}
	if s.AnomalyScoreThreshold != 5 {
		t.Errorf("Expected default anomaly threshold 5, got %d", s.AnomalyScoreThreshold)
	}
	if s.ManagedRuleOverrideMode != OverrideModeScore {
		t.Errorf("Expected default override mode score, got %q", s.ManagedRuleOverrideMode)
	}
}

func TestCompile_MissingVersion(t *testing.T) {
	doc := validDocument()
	doc.Version = ""

	_, err := Compile(doc)
	if !errors.Is(err, ErrUnversionedPolicy) {
		t.Errorf("Expected ErrUnversionedPolicy, got %v", err)
	}
}

func TestCompile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{
			name: "unknown mode",
			mutate: func(doc *Document) {
				doc.Settings.Mode = "Audit"
			},
		},
		{
			name: "negative anomaly threshold",
			mutate: func(doc *Document) {
				doc.Settings.AnomalyScoreThreshold = -1
			},
		},
		{
			name: "unknown override mode",
			mutate: func(doc *Document) {
				doc.Settings.ManagedRuleOverrideMode = "ignore"
			},
		},
		{
			name: "unnamed rule",
			mutate: func(doc *Document) {
				doc.CustomRules[0].Name = ""
			},
		},
		{
			name: "duplicate rule name",
			mutate: func(doc *Document) {
				doc.CustomRules = append(doc.CustomRules, doc.CustomRules[0])
			},
		},
		{
			name: "unknown rule type",
			mutate: func(doc *Document) {
				doc.CustomRules[0].RuleType = "ScanRule"
			},
		},
		{
			name: "rate limit rule without threshold",
			mutate: func(doc *Document) {
				doc.CustomRules[0].RuleType = RuleTypeRateLimit
				doc.CustomRules[0].RateLimitThreshold = 0
			},
		},
		{
			name: "managed rule set without type",
			mutate: func(doc *Document) {
				doc.ManagedRuleSets = []ManagedRuleSetRef{{RuleSetVersion: "1.0"}}
			},
		},
		{
			name: "exclusion without selector",
			mutate: func(doc *Document) {
				doc.Exclusions = []Exclusion{{
					MatchVariable:    ExclRequestHeaderNames,
					SelectorOperator: SelEquals,
				}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(doc)

			_, err := Compile(doc)
			if err == nil {
				t.Fatal("Expected compile error, got nil")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected *ConfigError, got %T", err)
			}
		})
	}
}

func TestCompile_InvalidPatterns(t *testing.T) {
	tests := []struct {
		name     string
		operator Operator
		value    string
	}{
		{name: "bad regex", operator: OpRegex, value: "(unclosed"},
		{name: "bad cidr", operator: OpIPMatch, value: "10.0.0.0/40"},
		{name: "bad address", operator: OpIPMatch, value: "not-an-ip"},
		{name: "non-numeric literal", operator: OpGreaterThan, value: "ten"},
		{name: "unknown operator", operator: "Glob", value: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			doc.CustomRules[0].MatchConditions = []MatchCondition{
				{Variable: VarRequestURI, Operator: tt.operator, Values: []string{tt.value}},
			}

			_, err := Compile(doc)
			if err == nil {
				t.Fatal("Expected compile error, got nil")
			}
			var compileErr *RuleCompileError
			if !errors.As(err, &compileErr) {
				t.Fatalf("Expected *RuleCompileError, got %T", err)
			}
			if compileErr.RuleName != "block-admin" {
				t.Errorf("Expected rule name in error, got %q", compileErr.RuleName)
			}
		})
	}
}

func TestCompile_PriorityOrdering(t *testing.T) {
	doc := &Document{
		Version: "v1",
		CustomRules: []CustomRule{
			{Name: "third", Priority: 30},
			{Name: "first", Priority: 10},
			{Name: "second-a", Priority: 20},
			{Name: "second-b", Priority: 20},
		},
	}

	policy, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	got := make([]string, 0, len(policy.MatchRules))
	for _, r := range policy.MatchRules {
		got = append(got, r.Name)
	}
	want := []string{"first", "second-a", "second-b", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, got)
		}
	}
}

func TestCompile_RateLimitWindow(t *testing.T) {
	doc := &Document{
		Version: "v1",
		CustomRules: []CustomRule{
			{
				Name:                     "limit",
				RuleType:                 RuleTypeRateLimit,
				RateLimitThreshold:       100,
				RateLimitDurationMinutes: 5,
			},
			{
				Name:               "limit-default-window",
				RuleType:           RuleTypeRateLimit,
				RateLimitThreshold: 10,
			},
		},
	}

	policy, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(policy.RateRules) != 2 {
		t.Fatalf("Expected 2 rate rules, got %d", len(policy.RateRules))
	}
	if policy.RateRules[0].Window != 5*time.Minute {
		t.Errorf("Expected 5m window, got %v", policy.RateRules[0].Window)
	}
	if policy.RateRules[1].Window != time.Minute {
		t.Errorf("Expected default 1m window, got %v", policy.RateRules[1].Window)
	}
}

func TestCompile_CaseInsensitiveFolding(t *testing.T) {
	doc := validDocument()
	doc.CustomRules[0].MatchConditions = []MatchCondition{
		{
			Variable:        VarRequestURI,
			Operator:        OpContains,
			Values:          []string{"AdMin"},
			CaseInsensitive: true,
		},
	}

	policy, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	cond := policy.MatchRules[0].Conditions[0]
	if cond.Folded[0] != "admin" {
		t.Errorf("Expected folded value %q, got %q", "admin", cond.Folded[0])
	}
}

func TestCompile_IPMatchWidensBareAddress(t *testing.T) {
	doc := validDocument()
	doc.CustomRules[0].MatchConditions = []MatchCondition{
		{
			Variable: VarRemoteAddr,
			Operator: OpIPMatch,
			Values:   []string{"192.0.2.7", "10.0.0.0/8"},
		},
	}

	policy, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	cond := policy.MatchRules[0].Conditions[0]
	if got := cond.Prefixes[0].Bits(); got != 32 {
		t.Errorf("Expected bare address widened to /32, got /%d", got)
	}
	if got := cond.Prefixes[1].Bits(); got != 8 {
		t.Errorf("Expected /8 preserved, got /%d", got)
	}
}

func TestCompiledManagedSet_Override(t *testing.T) {
	doc := &Document{
		Version: "v1",
		ManagedRuleSets: []ManagedRuleSetRef{
			{
				RuleSetType:    "Default",
				RuleSetVersion: "1.1",
				GroupOverrides: []GroupOverride{
					{
						GroupName: "SQLI",
						Rules: []RuleOverride{
							{RuleID: "942100", State: StateDisabled},
							{RuleID: "942150", Action: ActionLog},
						},
					},
				},
			},
		},
	}

	policy, err := Compile(doc)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	set := policy.ManagedSets[0]

	o, ok := set.Override("SQLI", "942100")
	if !ok || o.State != StateDisabled {
		t.Errorf("Expected disabled override for 942100, got %+v ok=%v", o, ok)
	}
	o, ok = set.Override("SQLI", "942150")
	if !ok || o.Action != ActionLog {
		t.Errorf("Expected Log action override for 942150, got %+v ok=%v", o, ok)
	}
	if _, ok := set.Override("SQLI", "942200"); ok {
		t.Error("Expected no override for 942200")
	}
	if _, ok := set.Override("XSS", "942100"); ok {
		t.Error("Override lookup must be scoped to the group")
	}
}
