package waf

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrUnversionedPolicy indicates a policy document without a version id.
	ErrUnversionedPolicy = errors.New("policy document has no version")

	// ErrNoPolicy indicates evaluation was attempted with no policy loaded.
	ErrNoPolicy = errors.New("no policy loaded")
)

// ConfigError indicates a malformed policy document at load time. The load
// is rejected as a whole; the previously active snapshot stays in effect.
type ConfigError struct {
	Version string
	Errors  []string
}

// Error returns the error message.
func (e *ConfigError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("policy %q: %s", e.Version, e.Errors[0])
	}
	return fmt.Sprintf("policy %q: %d validation errors: %v", e.Version, len(e.Errors), e.Errors)
}

// RuleCompileError indicates a rule whose condition failed to compile
// (typically an invalid RegEx pattern). It invalidates the whole load.
type RuleCompileError struct {
	RuleName  string
	Condition int
	Pattern   string
	Cause     error
}

// Error returns the error message.
func (e *RuleCompileError) Error() string {
	return fmt.Sprintf("rule %q condition %d: pattern %q: %v", e.RuleName, e.Condition, e.Pattern, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RuleCompileError) Unwrap() error {
	return e.Cause
}
