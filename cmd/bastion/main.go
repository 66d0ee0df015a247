// Bastion is a web application firewall rule evaluation engine.
//
// It evaluates HTTP requests against a policy of custom match rules,
// rate limit rules, and managed rule sets with anomaly scoring, and
// produces a single enforcement verdict per request:
//   - Custom rules evaluated in priority order with short-circuiting
//   - Keyed sliding-window rate limiting
//   - Managed rule sets with exclusions, overrides and anomaly scoring
//   - Detection mode for observing without enforcing
//   - Structured event emission with SQLite retention
//
// Usage:
//
//	# Start the admin server with default configuration
//	bastion run
//
//	# Start with custom configuration file
//	bastion run --config /path/to/config.yaml
//
//	# Show version information
//	bastion version
//
//	# Validate a policy document
//	bastion validate --policy policy.yaml
//
//	# Evaluate a request fixture against a policy
//	bastion evaluate --policy policy.yaml --request request.yaml
package main

func main() {
	Execute()
}
