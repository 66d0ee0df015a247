// Package engine evaluates HTTP requests against an immutable policy
// snapshot and produces an enforcement verdict.
//
// # Evaluation order
//
// The tier order is fixed:
//
//  1. Custom match rules, ascending priority. The first fully satisfied
//     rule with a terminal action (anything but Log) short-circuits
//     evaluation with that action; an Allow therefore bypasses every
//     later check, including managed rules.
//  2. Custom rate limit rules: the limiter is incremented for the rule's
//     key and a threshold breach short-circuits with the rule's action.
//  3. Bot protection rule sets, short-circuit on match.
//  4. Remaining managed rule sets under anomaly scoring: each match
//     contributes a severity-weighted score and the policy threshold
//     decides Block vs the default action once all rules have run. A
//     single low-severity match never blocks alone; several together do.
//
// Exclusions are consulted before a managed-rule match may contribute:
// an exclusion-scoped attribute match is discarded (optionally still
// reported as an excluded-match audit event). Exclusions never apply to
// custom rules.
//
// In Detection mode every Block outcome is downgraded to Log; matched
// rule metadata is still recorded. Evaluation-path errors never escape
// to the caller: a faulting rule is treated as non-matching and the rest
// of the policy still runs, while an irrecoverable fault produces the
// configured failure action (Block by default).
//
// # Concurrency
//
// Evaluations run concurrently against one shared snapshot with no
// locking: policy updates compile a fresh snapshot and swap an atomic
// pointer, so in-flight evaluations finish on the snapshot they started
// with. The only shared mutable state is the rate limit store.
package engine
