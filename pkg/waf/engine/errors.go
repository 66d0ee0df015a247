package engine

import (
	"fmt"
)

// EvaluationFault indicates a single rule or condition failed during
// evaluation. The fault is recovered: the rule is treated as
// non-matching and evaluation of the remaining rules continues.
type EvaluationFault struct {
	RuleID string
	Tier   Tier
	Cause  any
}

// Error returns the error message.
func (e *EvaluationFault) Error() string {
	return fmt.Sprintf("rule %q (%s tier): evaluation fault: %v", e.RuleID, e.Tier, e.Cause)
}

// CatalogMissError indicates a referenced managed rule set or rule id is
// absent from the loaded catalog. The reference is skipped and logged.
type CatalogMissError struct {
	RuleSetType string
	Version     string
	RuleID      string
}

// Error returns the error message.
func (e *CatalogMissError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("rule %s not found in catalog %s/%s", e.RuleID, e.RuleSetType, e.Version)
	}
	return fmt.Sprintf("rule set %s/%s not found in catalog", e.RuleSetType, e.Version)
}

// ReloadError indicates a policy reload failure. The previously active
// snapshot remains in effect.
type ReloadError struct {
	Source string
	Cause  error
}

// Error returns the error message.
func (e *ReloadError) Error() string {
	return fmt.Sprintf("policy reload from %q failed: %v", e.Source, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ReloadError) Unwrap() error {
	return e.Cause
}
