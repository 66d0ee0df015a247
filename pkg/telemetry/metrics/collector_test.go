package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordEvaluation("Block", "Prevention", time.Millisecond)
	c.RecordRuleMatch("custom")
	c.RecordAnomalyScore(5)
	c.RecordRateLimitBreach()
	c.RecordDroppedEvents(3)
	c.RecordPolicyReload("success")
}

func TestDisabledCollectorIsSafe(t *testing.T) {
	c, _ := NewCollector(&Config{Enabled: false}, nil)
	c.RecordEvaluation("Block", "Prevention", time.Millisecond)
	c.RecordRuleMatch("custom")
	c.RecordAnomalyScore(5)
	c.RecordRateLimitBreach()
	c.RecordDroppedEvents(3)
	c.RecordPolicyReload("failure")
}

func TestCollectorRegistersMetrics(t *testing.T) {
	c, registry := NewCollector(&Config{Enabled: true}, nil)
	if registry == nil {
		t.Fatal("expected a registry")
	}

	c.RecordEvaluation("Block", "Prevention", 100*time.Microsecond)
	c.RecordEvaluation("Allow", "Detection", 50*time.Microsecond)
	c.RecordRuleMatch("custom")
	c.RecordRuleMatch("managed")
	c.RecordAnomalyScore(5)
	c.RecordRateLimitBreach()
	c.RecordDroppedEvents(2)
	c.RecordPolicyReload("success")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := make(map[string]bool, len(families))
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"bastion_waf_evaluations_total",
		"bastion_waf_evaluation_duration_seconds",
		"bastion_waf_rule_matches_total",
		"bastion_waf_anomaly_score",
		"bastion_waf_rate_limit_breaches_total",
		"bastion_waf_dropped_events_total",
		"bastion_waf_policy_reloads_total",
	} {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestCollectorCounterValues(t *testing.T) {
	c, registry := NewCollector(nil, nil)

	c.RecordEvaluation("Block", "Prevention", time.Millisecond)
	c.RecordEvaluation("Block", "Prevention", time.Millisecond)
	c.RecordEvaluation("Allow", "Prevention", time.Millisecond)
	c.RecordDroppedEvents(0)
	c.RecordDroppedEvents(-1)
	c.RecordDroppedEvents(4)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		switch mf.GetName() {
		case "bastion_waf_evaluations_total":
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			if total != 3 {
				t.Errorf("evaluations_total = %v, want 3", total)
			}
		case "bastion_waf_dropped_events_total":
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 4 {
				t.Errorf("dropped_events_total = %v, want 4", got)
			}
		}
	}
}

func TestCustomNamespace(t *testing.T) {
	c, registry := NewCollector(&Config{Enabled: true, Namespace: "acme", Subsystem: "edge"}, nil)
	c.RecordRateLimitBreach()

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "acme_edge_rate_limit_breaches_total" {
			found = true
		}
		if strings.HasPrefix(mf.GetName(), "bastion_") {
			t.Errorf("unexpected default-namespace metric %s", mf.GetName())
		}
	}
	if !found {
		t.Error("custom namespace metric not registered")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c, registry := NewCollector(nil, nil)
	c.RecordEvaluation("Block", "Prevention", time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler(registry).ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bastion_waf_evaluations_total") {
		t.Error("exposition output missing evaluations counter")
	}
}
