package events

import (
	"context"
	"time"
)

// Kind classifies an event record.
type Kind string

const (
	// KindVerdict records the final decision for one evaluated request.
	KindVerdict Kind = "verdict"

	// KindExcludedMatch records a managed-rule match that was discarded
	// because its triggering attribute is exclusion-scoped.
	KindExcludedMatch Kind = "excluded_match"

	// KindError records a recovered evaluation-path error (rate limit
	// store failure, catalog miss, evaluation fault).
	KindError Kind = "error"

	// KindReload records a policy reload, successful or not.
	KindReload Kind = "reload"
)

// RuleRef identifies one fired rule within a record.
type RuleRef struct {
	RuleID    string `json:"rule_id"`
	RuleSet   string `json:"rule_set,omitempty"`
	RuleGroup string `json:"rule_group,omitempty"`
	Action    string `json:"action,omitempty"`
}

// Record is one structured event emitted to the logging collaborator.
type Record struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Kind          Kind      `json:"kind"`
	Action        string    `json:"action,omitempty"`
	Mode          string    `json:"mode,omitempty"`
	PolicyVersion string    `json:"policy_version,omitempty"`
	ClientIP      string    `json:"client_ip,omitempty"`
	RequestURI    string    `json:"request_uri,omitempty"`
	AnomalyScore  int       `json:"anomaly_score,omitempty"`
	MatchedRules  []RuleRef `json:"matched_rules,omitempty"`
	Message       string    `json:"message,omitempty"`
}

// RuleIDs returns the ids of all rules referenced by the record.
func (r *Record) RuleIDs() []string {
	ids := make([]string, 0, len(r.MatchedRules))
	for _, ref := range r.MatchedRules {
		ids = append(ids, ref.RuleID)
	}
	return ids
}

// Sink receives drained event records. Write is called from the emitter's
// worker goroutine, never from the evaluation path.
type Sink interface {
	Write(ctx context.Context, record *Record) error
	Close() error
}
