package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config contains configuration for metric collection.
type Config struct {
	// Enabled turns metric collection on. A nil or disabled Collector is
	// safe to call.
	Enabled bool

	// Namespace is the metric namespace. Default: "bastion".
	Namespace string

	// Subsystem is the metric subsystem. Default: "waf".
	Subsystem string

	// EvaluationDurationBuckets are histogram buckets for evaluation
	// latency in seconds. Evaluation is CPU-bound and short, so the
	// defaults cover 10µs to 100ms.
	EvaluationDurationBuckets []float64

	// AnomalyScoreBuckets are histogram buckets for anomaly scores.
	AnomalyScoreBuckets []float64
}

// Collector registers and records all engine metrics.
type Collector struct {
	enabled bool

	evaluations      *prometheus.CounterVec
	evaluationTime   prometheus.Histogram
	ruleMatches      *prometheus.CounterVec
	anomalyScores    prometheus.Histogram
	rateLimitBreaches prometheus.Counter
	droppedEvents    prometheus.Counter
	policyReloads    *prometheus.CounterVec
}

// NewCollector creates a collector registered against the given registry.
// If registry is nil, a new one is created; retrieve it with Registry.
func NewCollector(cfg *Config, registry *prometheus.Registry) (*Collector, *prometheus.Registry) {
	if cfg == nil {
		cfg = &Config{Enabled: true}
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "bastion"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "waf"
	}
	if len(cfg.EvaluationDurationBuckets) == 0 {
		cfg.EvaluationDurationBuckets = []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}
	}
	if len(cfg.AnomalyScoreBuckets) == 0 {
		cfg.AnomalyScoreBuckets = []float64{0, 2, 5, 10, 20, 50}
	}

	c := &Collector{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return c, registry
	}

	c.evaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "evaluations_total",
		Help:      "Evaluated requests by final action and policy mode.",
	}, []string{"action", "mode"})

	c.evaluationTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "evaluation_duration_seconds",
		Help:      "Time spent evaluating one request.",
		Buckets:   cfg.EvaluationDurationBuckets,
	})

	c.ruleMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "rule_matches_total",
		Help:      "Rule matches by evaluation tier.",
	}, []string{"tier"})

	c.anomalyScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "anomaly_score",
		Help:      "Anomaly score distribution over scored evaluations.",
		Buckets:   cfg.AnomalyScoreBuckets,
	})

	c.rateLimitBreaches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "rate_limit_breaches_total",
		Help:      "Rate limit rule breaches.",
	})

	c.droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "dropped_events_total",
		Help:      "Event records dropped because the emitter queue was full.",
	})

	c.policyReloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "policy_reloads_total",
		Help:      "Policy reload attempts by outcome.",
	}, []string{"status"})

	registry.MustRegister(
		c.evaluations,
		c.evaluationTime,
		c.ruleMatches,
		c.anomalyScores,
		c.rateLimitBreaches,
		c.droppedEvents,
		c.policyReloads,
	)

	return c, registry
}

// RecordEvaluation records one completed evaluation.
func (c *Collector) RecordEvaluation(action, mode string, duration time.Duration) {
	if c == nil || !c.enabled {
		return
	}
	c.evaluations.WithLabelValues(action, mode).Inc()
	c.evaluationTime.Observe(duration.Seconds())
}

// RecordRuleMatch records a rule match in the given tier.
func (c *Collector) RecordRuleMatch(tier string) {
	if c == nil || !c.enabled {
		return
	}
	c.ruleMatches.WithLabelValues(tier).Inc()
}

// RecordAnomalyScore records the final anomaly score of an evaluation
// that reached the scored tier.
func (c *Collector) RecordAnomalyScore(score int) {
	if c == nil || !c.enabled {
		return
	}
	c.anomalyScores.Observe(float64(score))
}

// RecordRateLimitBreach records a rate limit breach.
func (c *Collector) RecordRateLimitBreach() {
	if c == nil || !c.enabled {
		return
	}
	c.rateLimitBreaches.Inc()
}

// RecordDroppedEvents sets forward progress on the dropped event counter.
func (c *Collector) RecordDroppedEvents(n int64) {
	if c == nil || !c.enabled || n <= 0 {
		return
	}
	c.droppedEvents.Add(float64(n))
}

// RecordPolicyReload records a reload attempt ("success" or "failure").
func (c *Collector) RecordPolicyReload(status string) {
	if c == nil || !c.enabled {
		return
	}
	c.policyReloads.WithLabelValues(status).Inc()
}
