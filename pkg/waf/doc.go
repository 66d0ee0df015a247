// Package waf defines the policy document model for the Bastion rule
// evaluation engine: settings, custom rules, managed rule set references,
// and exclusions, together with the compile step that turns an authored
// policy document into an immutable, evaluation-ready Policy snapshot.
//
// A policy document is authored externally (YAML or JSON) and consumed
// read-only. Loading is all-or-nothing: a document that fails validation
// or whose regular expressions fail to compile is rejected as a whole,
// and the previously active snapshot stays in effect.
//
// Compiled policies are immutable. The engine swaps whole snapshots
// atomically; nothing in this package mutates a Policy after Compile
// returns it.
package waf
