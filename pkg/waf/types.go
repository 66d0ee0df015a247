package waf

// Mode controls whether the engine enforces verdicts or only reports them.
type Mode string

const (
	// ModeDetection evaluates every rule but never enforces: any Block
	// outcome is downgraded to Log before the verdict is returned.
	ModeDetection Mode = "Detection"

	// ModePrevention enforces rule actions as configured.
	ModePrevention Mode = "Prevention"
)

// Action is the enforcement outcome a rule (or the whole evaluation)
// produces for a request.
type Action string

const (
	ActionAllow     Action = "Allow"
	ActionBlock     Action = "Block"
	ActionLog       Action = "Log"
	ActionRedirect  Action = "Redirect"
	ActionChallenge Action = "Challenge"
)

// RuleType distinguishes plain match rules from rate limit rules.
type RuleType string

const (
	RuleTypeMatch     RuleType = "MatchRule"
	RuleTypeRateLimit RuleType = "RateLimitRule"
)

// MatchVariable identifies the request attribute a condition inspects.
// The set is closed: the evaluator dispatches exhaustively over these
// variants rather than doing dynamic attribute lookup.
type MatchVariable string

const (
	VarRequestURI      MatchVariable = "RequestUri"
	VarRequestMethod   MatchVariable = "RequestMethod"
	VarRemoteAddr      MatchVariable = "RemoteAddr"
	VarRequestHeaders  MatchVariable = "RequestHeaders"
	VarQueryArgs       MatchVariable = "QueryArgs"
	VarPostArgs        MatchVariable = "PostArgs"
	VarCookies         MatchVariable = "Cookies"
	VarRequestBody     MatchVariable = "RequestBody"
	VarRequestBodySize MatchVariable = "RequestBodySize"
)

// Operator is the comparison applied between the extracted request value
// and the condition's value list.
type Operator string

const (
	OpContains           Operator = "Contains"
	OpStartsWith         Operator = "StartsWith"
	OpEndsWith           Operator = "EndsWith"
	OpEquals             Operator = "Equals"
	OpGeoMatch           Operator = "GeoMatch"
	OpIPMatch            Operator = "IPMatch"
	OpRegex              Operator = "RegEx"
	OpLessThan           Operator = "LessThan"
	OpGreaterThan        Operator = "GreaterThan"
	OpLessThanOrEqual    Operator = "LessThanOrEqual"
	OpGreaterThanOrEqual Operator = "GreaterThanOrEqual"
)

// OverrideState enables or disables a managed rule via a group override.
type OverrideState string

const (
	StateEnabled  OverrideState = "Enabled"
	StateDisabled OverrideState = "Disabled"
)

// OverrideMode controls how an explicit per-rule action override on a
// managed rule behaves during scored evaluation.
type OverrideMode string

const (
	// OverrideModeScore keeps overridden rules inside the anomaly scoring
	// model: the override action is recorded on the match but the rule
	// still only contributes its severity weight to the score.
	OverrideModeScore OverrideMode = "score"

	// OverrideModeEnforce makes an overridden rule with a Block or Allow
	// action short-circuit evaluation like a custom rule.
	OverrideModeEnforce OverrideMode = "enforce"
)

// Document is the externally authored policy document, parsed from YAML
// (or JSON with equivalent field names). It is validated and compiled
// into a Policy before the engine ever sees it.
type Document struct {
	// Version identifies the policy snapshot. Required; load fails on an
	// unversioned document.
	Version string `yaml:"version" json:"version"`

	// Settings contains policy-wide evaluation settings.
	Settings Settings `yaml:"settings" json:"settings"`

	// CustomRules is the ordered list of custom rules. Evaluation order is
	// ascending priority; ties break by declaration order.
	CustomRules []CustomRule `yaml:"custom_rules" json:"customRules"`

	// ManagedRuleSets references externally loaded rule catalogs.
	ManagedRuleSets []ManagedRuleSetRef `yaml:"managed_rule_sets" json:"managedRuleSets"`

	// Exclusions suppress managed-rule matches for specific request
	// attributes. Exclusions never apply to custom rules.
	Exclusions []Exclusion `yaml:"exclusions" json:"exclusions"`
}

// Settings contains policy-wide evaluation settings.
type Settings struct {
	// Mode is Detection or Prevention. Default: Prevention.
	Mode Mode `yaml:"mode" json:"mode"`

	// DefaultAction applies when no rule produces a terminal action and
	// the anomaly score stays under threshold. Default: Allow.
	DefaultAction Action `yaml:"default_action" json:"defaultAction"`

	// RequestBodyCheck enables body inspection. Default: true.
	RequestBodyCheck *bool `yaml:"request_body_check" json:"requestBodyCheck"`

	// MaxRequestBodySizeKB bounds how much body is inspected. Default: 128.
	MaxRequestBodySizeKB int `yaml:"max_request_body_size_kb" json:"maxRequestBodySizeInKb"`

	// FileUploadLimitMB bounds accepted upload sizes. Default: 100.
	FileUploadLimitMB int `yaml:"file_upload_limit_mb" json:"fileUploadLimitInMb"`

	// OversizedBodyAction applies when the body exceeds
	// MaxRequestBodySizeKB: Block rejects the request outright, Allow
	// evaluates it with the body left uninspected. Default: Block.
	OversizedBodyAction Action `yaml:"oversized_body_action" json:"oversizedBodyAction"`

	// AnomalyScoreThreshold is the cumulative score at which scored
	// managed-rule evaluation blocks. Default: 5.
	AnomalyScoreThreshold int `yaml:"anomaly_score_threshold" json:"anomalyScoreThreshold"`

	// ManagedRuleOverrideMode is "score" or "enforce". Default: score.
	ManagedRuleOverrideMode OverrideMode `yaml:"managed_rule_override_mode" json:"managedRuleOverrideMode"`
}

// CustomRule is a single authored rule: an AND-combined condition list
// plus the action taken when every condition is satisfied.
type CustomRule struct {
	// Name uniquely identifies the rule within the policy.
	Name string `yaml:"name" json:"name"`

	// Priority orders evaluation; lower runs first.
	Priority int `yaml:"priority" json:"priority"`

	// RuleType is MatchRule or RateLimitRule. Default: MatchRule.
	RuleType RuleType `yaml:"rule_type" json:"ruleType"`

	// MatchConditions are AND-combined: the rule matches iff every
	// condition is satisfied. A RateLimitRule with no conditions applies
	// to every request.
	MatchConditions []MatchCondition `yaml:"match_conditions" json:"matchConditions"`

	// Action taken when the rule matches (or, for RateLimitRule, when the
	// threshold is breached).
	Action Action `yaml:"action" json:"action"`

	// RedirectURL is the target for Action: Redirect.
	RedirectURL string `yaml:"redirect_url,omitempty" json:"redirectUrl,omitempty"`

	// RateLimitThreshold is the request count allowed per window.
	// RateLimitRule only.
	RateLimitThreshold int64 `yaml:"rate_limit_threshold,omitempty" json:"rateLimitThreshold,omitempty"`

	// RateLimitDurationMinutes is the window length in minutes.
	// RateLimitRule only. Default: 1.
	RateLimitDurationMinutes int `yaml:"rate_limit_duration_minutes,omitempty" json:"rateLimitDurationInMinutes,omitempty"`

	// GroupBy selects the rate limit key: "ClientAddr" (default) counts
	// per client address, "None" counts globally.
	GroupBy string `yaml:"group_by,omitempty" json:"groupBy,omitempty"`
}

// MatchCondition is one comparison within a rule. Values are OR-combined:
// the condition is satisfied if the extracted request value matches any
// listed value. Negate flips the final result.
type MatchCondition struct {
	// Variable selects the request attribute to inspect.
	Variable MatchVariable `yaml:"variable" json:"matchVariable"`

	// Selector names a specific header, query argument, post argument or
	// cookie. Empty means all values of that attribute kind.
	Selector string `yaml:"selector,omitempty" json:"selector,omitempty"`

	// Operator is the comparison to apply.
	Operator Operator `yaml:"operator" json:"operator"`

	// Negate inverts the result after OR-combining Values.
	Negate bool `yaml:"negate,omitempty" json:"negateCondition,omitempty"`

	// Values are the comparison literals. For IPMatch these are CIDRs or
	// single addresses; for GeoMatch, ISO country codes; for numeric
	// operators, decimal numbers; for RegEx, patterns compiled at load.
	Values []string `yaml:"values" json:"matchValues"`

	// CaseInsensitive lowercases both sides before string comparison.
	// String operators default to case-sensitive.
	CaseInsensitive bool `yaml:"case_insensitive,omitempty" json:"caseInsensitive,omitempty"`
}

// ManagedRuleSetRef references a versioned rule catalog plus any per-group
// overrides. The rule bodies themselves live in the catalog, not here.
type ManagedRuleSetRef struct {
	RuleSetType    string          `yaml:"rule_set_type" json:"ruleSetType"`
	RuleSetVersion string          `yaml:"rule_set_version" json:"ruleSetVersion"`
	GroupOverrides []GroupOverride `yaml:"rule_group_overrides,omitempty" json:"ruleGroupOverrides,omitempty"`
}

// GroupOverride adjusts individual rules within a named catalog group.
type GroupOverride struct {
	GroupName string         `yaml:"group_name" json:"ruleGroupName"`
	Rules     []RuleOverride `yaml:"rules" json:"rules"`
}

// RuleOverride changes the state or action of one managed rule.
type RuleOverride struct {
	RuleID string        `yaml:"rule_id" json:"ruleId"`
	State  OverrideState `yaml:"state,omitempty" json:"state,omitempty"`
	Action Action        `yaml:"action,omitempty" json:"action,omitempty"`
}

// ExclusionVariable names the attribute namespace an exclusion selects in.
type ExclusionVariable string

const (
	ExclRequestHeaderNames  ExclusionVariable = "RequestHeaderNames"
	ExclRequestCookieNames  ExclusionVariable = "RequestCookieNames"
	ExclRequestArgNames     ExclusionVariable = "RequestArgNames"
	ExclRequestPostArgNames ExclusionVariable = "RequestPostArgNames"
)

// SelectorOperator is how an exclusion selector is compared against the
// concrete attribute name present in the request.
type SelectorOperator string

const (
	SelEquals     SelectorOperator = "Equals"
	SelStartsWith SelectorOperator = "StartsWith"
	SelEndsWith   SelectorOperator = "EndsWith"
	SelContains   SelectorOperator = "Contains"
	SelEqualsAny  SelectorOperator = "EqualsAny"
)

// Exclusion suppresses managed-rule matches for a named request attribute
// within its declared rule-set scope. An exclusion with no managed rule
// set scope applies to all managed rule evaluation.
type Exclusion struct {
	MatchVariable    ExclusionVariable         `yaml:"match_variable" json:"matchVariable"`
	SelectorOperator SelectorOperator          `yaml:"selector_match_operator" json:"selectorMatchOperator"`
	Selector         string                    `yaml:"selector" json:"selector"`
	ManagedRuleSets  []ExclusionManagedRuleSet `yaml:"managed_rule_sets,omitempty" json:"exclusionManagedRuleSets,omitempty"`
}

// ExclusionManagedRuleSet scopes an exclusion to a rule set, optionally
// narrowed to specific groups and rule ids.
type ExclusionManagedRuleSet struct {
	RuleSetType    string               `yaml:"rule_set_type" json:"ruleSetType"`
	RuleSetVersion string               `yaml:"rule_set_version,omitempty" json:"ruleSetVersion,omitempty"`
	RuleGroups     []ExclusionRuleGroup `yaml:"rule_groups,omitempty" json:"ruleGroups,omitempty"`
}

// ExclusionRuleGroup scopes an exclusion to a group, optionally narrowed
// to specific rule ids. An empty RuleIDs list covers the whole group.
type ExclusionRuleGroup struct {
	GroupName string   `yaml:"group_name" json:"ruleGroupName"`
	RuleIDs   []string `yaml:"rule_ids,omitempty" json:"rules,omitempty"`
}
