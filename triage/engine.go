package triage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/util"
	"go.uber.org/zap"
)

// Result is the outcome of evaluating the rule list against one finding.
type Result struct {
	Rule       string               `json:"rule" yaml:"rule"`
	Decision   model.TriageDecision `json:"decision" yaml:"decision"`
	Reason     string               `json:"reason" yaml:"reason"`
	Confidence int                  `json:"confidence" yaml:"confidence"`
}

// StoredReason is the reason text written on the finding.
func (r Result) StoredReason() string {
	return fmt.Sprintf("%s (Rule: %s, Confidence: %d%%)", r.Reason, r.Rule, r.Confidence)
}

// noMatch is returned when every rule was skipped or failed to match.
var noMatch = Result{
	Rule:     "default",
	Decision: model.DecisionPending,
	Reason:   "No auto-triage rule matched - requires manual review",
}

// Options scopes one triage run. Zero values select every finding.
type Options struct {
	FindingKeys []string
	ProductKey  string
	ActiveOnly  bool
	DryRun      bool
}

func (o Options) filter() store.FindingFilter {
	return store.FindingFilter{Keys: o.FindingKeys, ProductKey: o.ProductKey, ActiveOnly: o.ActiveOnly}
}

// Stats summarizes one triage run.
type Stats struct {
	Total        int  `json:"total_findings" yaml:"total_findings"`
	Dismissed    int  `json:"dismissed" yaml:"dismissed"`
	Escalated    int  `json:"escalated" yaml:"escalated"`
	AcceptedRisk int  `json:"accepted_risk" yaml:"accepted_risk"`
	Pending      int  `json:"pending" yaml:"pending"`
	Unchanged    int  `json:"unchanged" yaml:"unchanged"`
	Errors       int  `json:"errors" yaml:"errors"`
	DryRun       bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

func (s *Stats) count(d model.TriageDecision) {
	switch d {
	case model.DecisionDismiss:
		s.Dismissed++
	case model.DecisionEscalate:
		s.Escalated++
	case model.DecisionAcceptRisk:
		s.AcceptedRisk++
	default:
		s.Pending++
	}
}

// DecisionShare is one row of the decision statistics.
type DecisionShare struct {
	Count      int     `json:"count" yaml:"count"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// Statistics is the decision breakdown over active findings.
type Statistics struct {
	Total      int                                    `json:"total" yaml:"total"`
	ByDecision map[model.TriageDecision]DecisionShare `json:"by_decision" yaml:"by_decision"`
}

// Engine evaluates rules and stores the decisions.
type Engine struct {
	store    store.Store
	resolver *Resolver
	rules    []Rule
	now      func() time.Time
	logger   *zap.Logger
}

// NewEngine creates an engine. A nil rule list selects DefaultRules and a nil clock selects
// time.Now.
func NewEngine(st store.Store, rules []Rule, now func() time.Time, logger *zap.Logger) *Engine {
	if rules == nil {
		rules = DefaultRules()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    st,
		resolver: NewResolver(st),
		rules:    rules,
		now:      now,
		logger:   util.OrNop(logger),
	}
}

// Rules returns the rule list in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate returns the first rule matching subject. A rule whose predicate panics is logged
// and skipped.
func (e *Engine) Evaluate(subject Subject) Result {
	for _, r := range e.rules {
		matched, err := e.match(r, subject)
		if err != nil {
			e.logger.Warn("Error evaluating triage rule", zap.String("rule", r.Name), zap.Error(err))
			continue
		}
		if matched {
			return Result{Rule: r.Name, Decision: r.Decision, Reason: r.Reason, Confidence: r.Confidence}
		}
	}
	return noMatch
}

func (e *Engine) match(r Rule, subject Subject) (matched bool, err error) {
	if r.Predicate == nil {
		return false, fmt.Errorf("rule has no predicate")
	}
	defer func() {
		if p := recover(); p != nil {
			matched, err = false, fmt.Errorf("predicate panicked: %v", p)
		}
	}()
	return r.Predicate(subject), nil
}

// TriageFinding resolves the context of one finding and stores the resulting decision. A
// decision equal to the stored one is not written and changed is false.
func (e *Engine) TriageFinding(ctx context.Context, f *model.Finding, dryRun bool) (Result, bool, error) {
	subject, err := e.resolver.Resolve(ctx, f)
	if err != nil {
		return Result{}, false, err
	}
	if !subject.Available() {
		e.logger.Debug("Triage context unavailable", zap.String("finding", f.Key))
	}
	res := e.Evaluate(subject)

	current := f.AutoTriageDecision
	if current == "" {
		current = model.DecisionPending
	}
	if res.Decision == current {
		return res, false, nil
	}
	if dryRun {
		return res, true, nil
	}
	if err := e.store.UpdateTriage(ctx, f.Key, res.Decision, res.StoredReason(), e.now().UTC()); err != nil {
		return res, false, fmt.Errorf("storing triage decision: %w", err)
	}
	e.logger.Debug("Triaged finding",
		zap.String("finding", f.Key),
		zap.String("decision", string(res.Decision)),
		zap.String("rule", res.Rule))
	return res, true, nil
}

// Apply triages every finding selected by opts. Per-finding failures are counted.
func (e *Engine) Apply(ctx context.Context, opts Options) (Stats, error) {
	stats := Stats{DryRun: opts.DryRun}
	list, err := e.store.ListFindings(ctx, opts.filter())
	if err != nil {
		return stats, err
	}
	stats.Total = len(list)

	for _, f := range list {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		res, changed, err := e.TriageFinding(ctx, f, opts.DryRun)
		if err != nil {
			stats.Errors++
			e.logger.Error("Error triaging finding", zap.String("finding", f.Key), zap.Error(err))
			continue
		}
		if !changed {
			stats.Unchanged++
			continue
		}
		stats.count(res.Decision)
	}

	e.logger.Info("Auto-triage completed",
		zap.Int("total_findings", stats.Total),
		zap.Int("dismissed", stats.Dismissed),
		zap.Int("escalated", stats.Escalated),
		zap.Int("accepted_risk", stats.AcceptedRisk),
		zap.Int("pending", stats.Pending),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("errors", stats.Errors),
		zap.Bool("dry_run", stats.DryRun))
	return stats, nil
}

// Retriage re-evaluates the given findings.
func (e *Engine) Retriage(ctx context.Context, findingKeys []string) error {
	if len(findingKeys) == 0 {
		return nil
	}
	stats, err := e.Apply(ctx, Options{FindingKeys: findingKeys})
	if err != nil {
		return err
	}
	if stats.Errors > 0 {
		return fmt.Errorf("re-triage failed for %d of %d findings", stats.Errors, stats.Total)
	}
	return nil
}

// Reset returns the selected findings to PENDING and clears reason and timestamp.
func (e *Engine) Reset(ctx context.Context, opts Options) (int, error) {
	n, err := e.store.ResetTriage(ctx, opts.filter())
	if err != nil {
		return 0, err
	}
	e.logger.Info("Reset auto-triage decisions", zap.Int("findings", n))
	return n, nil
}

// Statistics breaks active findings down by stored decision.
func (e *Engine) Statistics(ctx context.Context) (Statistics, error) {
	counts, err := e.store.CountTriageDecisions(ctx, store.FindingFilter{ActiveOnly: true})
	if err != nil {
		return Statistics{}, err
	}
	out := Statistics{ByDecision: map[model.TriageDecision]DecisionShare{}}
	for _, n := range counts {
		out.Total += n
	}
	for d, n := range counts {
		share := DecisionShare{Count: n}
		if out.Total > 0 {
			share.Percentage = math.Round(float64(n)/float64(out.Total)*10000) / 100
		}
		out.ByDecision[d] = share
	}
	return out, nil
}

// ValidateRules checks the rule list of the engine.
func (e *Engine) ValidateRules() []string {
	return ValidateRules(e.rules)
}
