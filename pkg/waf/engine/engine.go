package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sentra-hq/bastion/pkg/events"
	"sentra-hq/bastion/pkg/geo"
	"sentra-hq/bastion/pkg/limits/ratelimit"
	"sentra-hq/bastion/pkg/telemetry/metrics"
	"sentra-hq/bastion/pkg/waf"
	"sentra-hq/bastion/pkg/waf/catalog"
)

// PolicySource provides compiled policy snapshots to the engine.
type PolicySource interface {
	// LoadPolicy loads and compiles the policy document. Loading is
	// all-or-nothing; an error leaves the engine's previous snapshot
	// active.
	LoadPolicy(ctx context.Context) (*waf.Policy, error)

	// Watch watches for policy changes and sends events on the returned
	// channel. The channel is closed when the context is cancelled.
	Watch(ctx context.Context) (<-chan SourceEvent, error)
}

// SourceEvent signals a policy change observed by a source.
type SourceEvent struct {
	// Path is the changed file, where applicable.
	Path string

	// Err is any error observed while watching.
	Err error
}

// Config contains engine configuration.
type Config struct {
	// FailureAction is the verdict action on an irrecoverable internal
	// fault or when evaluation runs with no policy loaded. Default:
	// Block (fail closed) — letting an unevaluated request through
	// undermines the firewall's purpose.
	FailureAction waf.Action

	// EmitExcludedMatches reports exclusion-suppressed managed-rule
	// matches as audit events. Default: true.
	EmitExcludedMatches *bool
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	emit := true
	return &Config{
		FailureAction:       waf.ActionBlock,
		EmitExcludedMatches: &emit,
	}
}

// Options carries the engine's collaborators. Nil fields get working
// defaults: an empty catalog, an in-memory fail-open rate limiter, and a
// log-sink emitter. Collaborators passed in are owned by the caller;
// defaults created here are closed by Engine.Close.
type Options struct {
	Catalog  *catalog.Catalog
	Limiter  *ratelimit.Limiter
	Emitter  *events.Emitter
	Metrics  *metrics.Collector
	Resolver *geo.Resolver
	Logger   *slog.Logger
}

// snapshot pairs a compiled policy with its derived exclusion processor.
// Snapshots are immutable and swapped wholesale.
type snapshot struct {
	policy     *waf.Policy
	exclusions *ExclusionProcessor
}

// Engine evaluates requests against the active policy snapshot.
type Engine struct {
	config *Config

	snap atomic.Pointer[snapshot]

	catalog  *catalog.Catalog
	limiter  *ratelimit.Limiter
	emitter  *events.Emitter
	metrics  *metrics.Collector
	resolver *geo.Resolver
	logger   *slog.Logger

	ownedLimiter bool
	ownedEmitter bool

	source PolicySource
	stopCh chan struct{}
	wg     sync.WaitGroup

	prevDropped atomic.Int64
}

// New creates an engine. When source is non-nil the initial policy is
// loaded from it (a failed initial load is fatal) and the engine watches
// it for changes; a nil source leaves the engine empty until SetPolicy.
func New(config *Config, source PolicySource, opts Options) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.FailureAction == "" {
		config.FailureAction = waf.ActionBlock
	}
	if config.EmitExcludedMatches == nil {
		emit := true
		config.EmitExcludedMatches = &emit
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		config:   config,
		catalog:  opts.Catalog,
		limiter:  opts.Limiter,
		emitter:  opts.Emitter,
		metrics:  opts.Metrics,
		resolver: opts.Resolver,
		logger:   logger.With("component", "waf.engine"),
		source:   source,
		stopCh:   make(chan struct{}),
	}

	if e.catalog == nil {
		e.catalog = catalog.New()
	}
	if e.limiter == nil {
		limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.FailOpen, logger)
		if err != nil {
			return nil, err
		}
		e.limiter = limiter
		e.ownedLimiter = true
	}
	if e.emitter == nil {
		e.emitter = events.NewEmitter(events.NewLogSink(logger), nil, logger)
		e.ownedEmitter = true
	}

	if source != nil {
		if err := e.Reload(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to load initial policy: %w", err)
		}
		e.startWatching()
	}

	return e, nil
}

// SetPolicy atomically publishes a new immutable snapshot. In-flight
// evaluations continue against the snapshot they started with.
func (e *Engine) SetPolicy(policy *waf.Policy) {
	e.snap.Store(&snapshot{
		policy:     policy,
		exclusions: NewExclusionProcessor(policy.Exclusions),
	})
	e.logger.Info("policy snapshot published",
		"version", policy.Version,
		"mode", policy.Settings.Mode,
		"match_rules", len(policy.MatchRules),
		"rate_rules", len(policy.RateRules),
		"managed_sets", len(policy.ManagedSets),
	)
}

// ActivePolicy returns the currently published snapshot, or nil.
func (e *Engine) ActivePolicy() *waf.Policy {
	snap := e.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.policy
}

// Reload loads a fresh policy from the source and publishes it. On error
// the previous snapshot stays active.
func (e *Engine) Reload(ctx context.Context) error {
	if e.source == nil {
		return &ReloadError{Source: "none", Cause: fmt.Errorf("engine has no policy source")}
	}
	policy, err := e.source.LoadPolicy(ctx)
	if err != nil {
		e.metrics.RecordPolicyReload("failure")
		e.emitter.Emit(&events.Record{
			Kind:    events.KindReload,
			Message: fmt.Sprintf("policy reload failed: %v", err),
		})
		return &ReloadError{Source: "source", Cause: err}
	}

	e.SetPolicy(policy)
	e.metrics.RecordPolicyReload("success")
	e.emitter.Emit(&events.Record{
		Kind:          events.KindReload,
		PolicyVersion: policy.Version,
		Message:       "policy reloaded",
	})
	return nil
}

// Evaluate produces a verdict for one request. It never returns an
// error; irrecoverable faults yield the configured failure action.
func (e *Engine) Evaluate(ctx context.Context, req *RequestContext) *Verdict {
	start := time.Now()

	snap := e.snap.Load()
	if snap == nil {
		verdict := &Verdict{
			Action: e.config.FailureAction,
			Reason: "no policy loaded",
		}
		verdict.EvaluationTime = time.Since(start)
		e.finish(req, verdict)
		return verdict
	}

	verdict := e.evaluateTiers(ctx, snap, req)
	verdict.Mode = snap.policy.Settings.Mode
	verdict.PolicyVersion = snap.policy.Version
	verdict.EvaluationTime = time.Since(start)
	e.finish(req, verdict)
	return verdict
}

// evaluateTiers walks the fixed tier order. A panic anywhere inside is
// the irrecoverable case: the configured failure action is returned.
func (e *Engine) evaluateTiers(ctx context.Context, snap *snapshot, req *RequestContext) (verdict *Verdict) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("irrecoverable evaluation fault",
				"panic", r,
				"failure_action", e.config.FailureAction,
			)
			// Detection mode never enforces, not even on a fault.
			verdict = &Verdict{
				Action: applyMode(snap.policy.Settings.Mode, e.config.FailureAction),
				Reason: "internal evaluation fault",
			}
		}
	}()

	settings := snap.policy.Settings

	if req.BodyOversized && settings.OversizedBodyAction == waf.ActionBlock {
		return &Verdict{
			Action: applyMode(settings.Mode, waf.ActionBlock),
			Reason: "request body exceeds inspection limit",
		}
	}

	verdict = &Verdict{}

	if done := e.customTier(req, snap, verdict); done {
		return verdict
	}
	if done := e.rateLimitTier(ctx, req, snap, verdict); done {
		return verdict
	}
	if done := e.managedTiers(req, snap, verdict); done {
		return verdict
	}

	verdict.Action = applyMode(settings.Mode, settings.DefaultAction)
	return verdict
}

// customTier evaluates custom match rules in priority order. The first
// satisfied rule with a terminal action decides the verdict; Log rules
// record their match and evaluation continues.
func (e *Engine) customTier(req *RequestContext, snap *snapshot, verdict *Verdict) bool {
	settings := snap.policy.Settings

	for _, rule := range snap.policy.MatchRules {
		matched, detail := e.ruleMatches(req, rule, TierCustom)
		if !matched {
			continue
		}

		verdict.MatchedRules = append(verdict.MatchedRules, RuleMatch{
			RuleID:    rule.Name,
			Tier:      TierCustom,
			Action:    rule.Action,
			Attribute: detail.attribute,
			Matched:   detail.matched,
			Offset:    detail.offset,
		})
		e.metrics.RecordRuleMatch(string(TierCustom))

		if rule.Action == waf.ActionLog {
			continue
		}

		verdict.Action = applyMode(settings.Mode, rule.Action)
		if rule.Action == waf.ActionRedirect {
			verdict.RedirectURL = rule.RedirectURL
		}
		verdict.Reason = fmt.Sprintf("custom rule %q matched", rule.Name)
		return true
	}
	return false
}

// rateLimitTier evaluates rate limit rules: every satisfied rule
// increments its counter, and a breach decides the verdict.
func (e *Engine) rateLimitTier(ctx context.Context, req *RequestContext, snap *snapshot, verdict *Verdict) bool {
	settings := snap.policy.Settings

	for _, rule := range snap.policy.RateRules {
		matched, _ := e.ruleMatches(req, rule, TierRateLimit)
		if !matched {
			continue
		}

		key := rule.Name
		if rule.GroupBy != "None" {
			key += "|" + req.ClientIP
		}

		result := e.limiter.Check(ctx, key, rule.Window, rule.RateLimitThreshold)
		if result.StoreErr != nil {
			e.emitter.Emit(&events.Record{
				Kind:          events.KindError,
				PolicyVersion: snap.policy.Version,
				ClientIP:      req.ClientIP,
				RequestURI:    req.URI,
				Message:       fmt.Sprintf("rate limit store failure for rule %q: %v", rule.Name, result.StoreErr),
			})
		}
		if !result.Breached {
			continue
		}

		e.metrics.RecordRateLimitBreach()
		e.metrics.RecordRuleMatch(string(TierRateLimit))
		verdict.MatchedRules = append(verdict.MatchedRules, RuleMatch{
			RuleID: rule.Name,
			Tier:   TierRateLimit,
			Action: rule.Action,
		})
		verdict.Action = applyMode(settings.Mode, rule.Action)
		if rule.Action == waf.ActionRedirect {
			verdict.RedirectURL = rule.RedirectURL
		}
		verdict.Reason = fmt.Sprintf("rate limit rule %q breached (%d > %d)", rule.Name, result.Count, result.Threshold)
		return true
	}
	return false
}

// managedTiers evaluates bot rule sets (short-circuit) and then the
// remaining managed rule sets under anomaly scoring.
func (e *Engine) managedTiers(req *RequestContext, snap *snapshot, verdict *Verdict) bool {
	settings := snap.policy.Settings

	type resolvedSet struct {
		ref *waf.CompiledManagedSet
		set *catalog.RuleSet
	}
	var botSets, scoredSets []resolvedSet

	for _, ref := range snap.policy.ManagedSets {
		rs, ok := e.catalog.RuleSet(ref.RuleSetType, ref.RuleSetVersion)
		if !ok {
			e.catalogMiss(snap, req, &CatalogMissError{
				RuleSetType: ref.RuleSetType,
				Version:     ref.RuleSetVersion,
			})
			continue
		}
		if rs.Bot {
			botSets = append(botSets, resolvedSet{ref, rs})
		} else {
			scoredSets = append(scoredSets, resolvedSet{ref, rs})
		}
	}

	// Bot tier: first match decides.
	for _, rset := range botSets {
		for _, group := range rset.set.Groups {
			for _, rule := range group.Rules {
				action, skip := e.effectiveAction(rset.ref, rule)
				if skip {
					continue
				}
				matched, m := e.managedRuleMatch(req, snap, rset.ref, rule)
				if !matched {
					continue
				}

				m.Tier = TierBot
				m.Action = action
				verdict.MatchedRules = append(verdict.MatchedRules, m)
				e.metrics.RecordRuleMatch(string(TierBot))

				if action == waf.ActionLog {
					continue
				}
				verdict.Action = applyMode(settings.Mode, action)
				verdict.Reason = fmt.Sprintf("bot rule %s matched", rule.ID)
				return true
			}
		}
	}

	// Scored tier: matches accumulate severity-weighted score.
	score := 0
	scored := false
	for _, rset := range scoredSets {
		for _, group := range rset.set.Groups {
			for _, rule := range group.Rules {
				action, skip := e.effectiveAction(rset.ref, rule)
				if skip {
					continue
				}
				matched, m := e.managedRuleMatch(req, snap, rset.ref, rule)
				if !matched {
					continue
				}

				m.Tier = TierManaged
				m.Action = action
				e.metrics.RecordRuleMatch(string(TierManaged))

				// An explicit override action short-circuits only in
				// enforce mode; under the default score mode it is
				// recorded on the match and the rule keeps scoring.
				if _, overridden := rset.ref.Override(group.Name, rule.ID); overridden &&
					settings.ManagedRuleOverrideMode == waf.OverrideModeEnforce &&
					(action == waf.ActionBlock || action == waf.ActionAllow) {
					verdict.MatchedRules = append(verdict.MatchedRules, m)
					verdict.AnomalyScore = score
					verdict.Action = applyMode(settings.Mode, action)
					verdict.Reason = fmt.Sprintf("managed rule %s override enforced", rule.ID)
					return true
				}

				m.Score = rule.Severity.Score()
				score += m.Score
				scored = true
				verdict.MatchedRules = append(verdict.MatchedRules, m)
			}
		}
	}

	if scored {
		verdict.AnomalyScore = score
		e.metrics.RecordAnomalyScore(score)
	}
	if score >= settings.AnomalyScoreThreshold {
		verdict.Action = applyMode(settings.Mode, waf.ActionBlock)
		verdict.Reason = fmt.Sprintf("anomaly score %d reached threshold %d", score, settings.AnomalyScoreThreshold)
		return true
	}
	return false
}

// effectiveAction resolves a managed rule's action through any override.
// skip is true when the override disables the rule.
func (e *Engine) effectiveAction(ref *waf.CompiledManagedSet, rule *catalog.Rule) (waf.Action, bool) {
	override, ok := ref.Override(rule.GroupName, rule.ID)
	if !ok {
		return rule.Action, false
	}
	if override.State == waf.StateDisabled {
		return "", true
	}
	if override.Action != "" {
		return override.Action, false
	}
	return rule.Action, false
}

// managedRuleMatch applies a managed rule's pattern to its target
// attributes, consulting exclusions before any value may contribute.
// A rule fault is recovered and treated as a non-match.
func (e *Engine) managedRuleMatch(req *RequestContext, snap *snapshot, ref *waf.CompiledManagedSet, rule *catalog.Rule) (matched bool, m RuleMatch) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			e.logger.Error("managed rule evaluation fault",
				"rule_id", rule.ID,
				"rule_set", ref.RuleSetType,
				"panic", r,
			)
		}
	}()

	for _, target := range rule.Targets {
		for _, av := range extractValues(req, target.Variable, target.Selector) {
			loc := rule.Regexp().FindStringIndex(av.value)
			if loc == nil {
				continue
			}

			if snap.exclusions.Excluded(ref.RuleSetType, ref.RuleSetVersion, rule.GroupName, rule.ID, target.Variable, av.name) {
				if *e.config.EmitExcludedMatches {
					e.emitter.Emit(&events.Record{
						Kind:          events.KindExcludedMatch,
						PolicyVersion: snap.policy.Version,
						ClientIP:      req.ClientIP,
						RequestURI:    req.URI,
						MatchedRules: []events.RuleRef{{
							RuleID:    rule.ID,
							RuleSet:   ref.RuleSetType,
							RuleGroup: rule.GroupName,
						}},
						Message: fmt.Sprintf("match on excluded attribute %q discarded", av.name),
					})
				}
				continue
			}

			return true, RuleMatch{
				RuleID:    rule.ID,
				RuleSet:   ref.RuleSetType,
				RuleGroup: rule.GroupName,
				Severity:  rule.Severity,
				Variable:  target.Variable,
				Attribute: av.name,
				Matched:   av.value[loc[0]:loc[1]],
				Offset:    loc[0],
			}
		}
	}
	return false, RuleMatch{}
}

// ruleMatches evaluates a custom rule's AND-combined condition list. A
// condition fault is recovered and the rule treated as non-matching;
// evaluation of remaining rules continues.
func (e *Engine) ruleMatches(req *RequestContext, rule *waf.CompiledRule, tier Tier) (matched bool, detail matchDetail) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
			fault := &EvaluationFault{RuleID: rule.Name, Tier: tier, Cause: r}
			e.logger.Error("rule evaluation fault", "error", fault.Error())
			e.emitter.Emit(&events.Record{
				Kind:    events.KindError,
				Message: fault.Error(),
			})
		}
	}()

	for _, cond := range rule.Conditions {
		ok, d := conditionSatisfied(req, cond)
		if !ok {
			return false, matchDetail{}
		}
		if d.matched != "" {
			detail = d
		}
	}
	return true, detail
}

// catalogMiss logs and reports a missing catalog reference; the
// reference is skipped, not fatal.
func (e *Engine) catalogMiss(snap *snapshot, req *RequestContext, miss *CatalogMissError) {
	e.logger.Warn("catalog miss", "error", miss.Error())
	e.emitter.Emit(&events.Record{
		Kind:          events.KindError,
		PolicyVersion: snap.policy.Version,
		ClientIP:      req.ClientIP,
		RequestURI:    req.URI,
		Message:       miss.Error(),
	})
}

// applyMode downgrades Block to Log in Detection mode. Other actions
// pass through unchanged.
func applyMode(mode waf.Mode, action waf.Action) waf.Action {
	if mode == waf.ModeDetection && action == waf.ActionBlock {
		return waf.ActionLog
	}
	return action
}

// finish records metrics and emits the verdict event.
func (e *Engine) finish(req *RequestContext, verdict *Verdict) {
	e.metrics.RecordEvaluation(string(verdict.Action), string(verdict.Mode), verdict.EvaluationTime)

	refs := make([]events.RuleRef, 0, len(verdict.MatchedRules))
	for _, m := range verdict.MatchedRules {
		refs = append(refs, events.RuleRef{
			RuleID:    m.RuleID,
			RuleSet:   m.RuleSet,
			RuleGroup: m.RuleGroup,
			Action:    string(m.Action),
		})
	}

	record := &events.Record{
		Kind:          events.KindVerdict,
		Action:        string(verdict.Action),
		Mode:          string(verdict.Mode),
		PolicyVersion: verdict.PolicyVersion,
		AnomalyScore:  verdict.AnomalyScore,
		MatchedRules:  refs,
		Message:       verdict.Reason,
	}
	if req != nil {
		record.ClientIP = req.ClientIP
		record.RequestURI = req.URI
	}
	e.emitter.Emit(record)

	dropped := e.emitter.Dropped()
	prev := e.prevDropped.Swap(dropped)
	e.metrics.RecordDroppedEvents(dropped - prev)
}

// startWatching consumes source change events and reloads.
func (e *Engine) startWatching() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx := context.Background()
		eventCh, err := e.source.Watch(ctx)
		if err != nil {
			e.logger.Error("failed to start policy watcher", "error", err)
			return
		}

		for {
			select {
			case <-e.stopCh:
				return
			case event, ok := <-eventCh:
				if !ok {
					return
				}
				if event.Err != nil {
					e.logger.Error("policy watch error", "error", event.Err)
					continue
				}
				e.logger.Info("policy change detected", "path", event.Path)
				if err := e.Reload(ctx); err != nil {
					e.logger.Error("policy reload failed; previous snapshot remains active",
						"path", event.Path,
						"error", err,
					)
				}
			}
		}
	}()
}

// Close stops the watcher and releases collaborators the engine created
// itself.
func (e *Engine) Close() error {
	close(e.stopCh)
	e.wg.Wait()

	if e.ownedLimiter {
		e.limiter.Close()
	}
	if e.ownedEmitter {
		return e.emitter.Close()
	}
	return nil
}
