package triage

import (
	"fmt"

	"github.com/ortelius/pdvd-enricher/model"
)

// DormantDays is the commit age after which a repository counts as dormant.
const DormantDays = 180

// Rule pairs a predicate with the decision it produces.
type Rule struct {
	Name       string               `json:"name" yaml:"name"`
	Decision   model.TriageDecision `json:"decision" yaml:"decision"`
	Reason     string               `json:"reason" yaml:"reason"`
	Confidence int                  `json:"confidence" yaml:"confidence"`
	Predicate  func(Subject) bool   `json:"-" yaml:"-"`
}

func tier(s Subject, tiers ...model.Tier) bool {
	t := s.Tier()
	if t == "" {
		return false
	}
	for _, want := range tiers {
		if t == want {
			return true
		}
	}
	return false
}

// defaultRules is ordered: escalations, risk acceptance, dismissals, manual review, fallback.
var defaultRules = []Rule{
	{
		Name:       "critical_high_epss_tier1",
		Decision:   model.DecisionEscalate,
		Reason:     "Critical/High severity with very high EPSS score (≥70%) in Tier 1 production repository - immediate action required",
		Confidence: 95,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier1) && s.EPSSAtLeast(0.7) && s.CriticalOrHigh() && s.Production()
		},
	},
	{
		Name:       "high_epss_tier1_production",
		Decision:   model.DecisionEscalate,
		Reason:     "High EPSS score (≥50%) in Tier 1 production repository - requires priority remediation",
		Confidence: 90,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier1) && s.EPSSAtLeast(0.5) && s.Production()
		},
	},
	{
		Name:       "critical_severity_tier1",
		Decision:   model.DecisionEscalate,
		Reason:     "Critical/High severity in Tier 1 repository with moderate EPSS (≥30%)",
		Confidence: 85,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier1) && s.CriticalOrHigh() && s.EPSSAtLeast(0.3)
		},
	},
	{
		Name:       "high_epss_tier2_production",
		Decision:   model.DecisionEscalate,
		Reason:     "High EPSS score (≥60%) in Tier 2 production repository",
		Confidence: 85,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier2) && s.EPSSAtLeast(0.6) && s.Production()
		},
	},
	{
		Name:       "critical_severity_tier2_active",
		Decision:   model.DecisionEscalate,
		Reason:     "Critical/High severity in active Tier 2 repository with elevated EPSS (≥40%)",
		Confidence: 80,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier2) && s.CriticalOrHigh() && s.EPSSAtLeast(0.4) && s.Active()
		},
	},
	{
		Name:       "accept_archived_repo",
		Decision:   model.DecisionAcceptRisk,
		Reason:     "Finding in archived repository - no active maintenance planned",
		Confidence: 95,
		Predicate: func(s Subject) bool {
			return tier(s, model.Archived)
		},
	},
	{
		Name:       "accept_dormant_low_risk",
		Decision:   model.DecisionAcceptRisk,
		Reason:     "Low risk finding in dormant repository (180+ days no commits) - deferred until repository reactivation",
		Confidence: 85,
		Predicate: func(s Subject) bool {
			return s.Dormant(DormantDays) && s.EPSSBelow(0.1) && !s.CriticalOrHigh()
		},
	},
	{
		Name:       "accept_low_epss_tier4",
		Decision:   model.DecisionAcceptRisk,
		Reason:     "Low severity with minimal EPSS (<5%) in Tier 4 repository - accepted risk",
		Confidence: 80,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier4) && s.EPSSBelow(0.05) && s.LowOrInfo()
		},
	},
	{
		Name:       "dismiss_very_low_epss_tier3_or_4",
		Decision:   model.DecisionDismiss,
		Reason:     "Very low EPSS score (<2%) in non-critical repository (Tier 3/4) - minimal exploitation risk",
		Confidence: 85,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier3, model.Tier4) && s.EPSSBelow(0.02) && !s.CriticalOrHigh()
		},
	},
	{
		Name:       "dismiss_info_severity_low_epss",
		Decision:   model.DecisionDismiss,
		Reason:     "Informational severity with low EPSS (<10%) - not actionable",
		Confidence: 90,
		Predicate: func(s Subject) bool {
			return s.Informational() && s.EPSSBelow(0.1)
		},
	},
	{
		Name:       "dismiss_low_epss_tier4_no_production",
		Decision:   model.DecisionDismiss,
		Reason:     "Low EPSS (<10%) in non-production Tier 4 repository - minimal business impact",
		Confidence: 80,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier4) && s.EPSSBelow(0.1) && !s.Production()
		},
	},
	{
		Name:       "review_medium_epss_tier2",
		Decision:   model.DecisionPending,
		Reason:     "Medium EPSS score (20-50%) in Tier 2 repository - manual assessment recommended",
		Confidence: 70,
		Predicate: func(s Subject) bool {
			return tier(s, model.Tier2) && s.EPSSBetween(0.2, 0.5)
		},
	},
	{
		Name:       "review_high_severity_no_epss",
		Decision:   model.DecisionPending,
		Reason:     "High/Critical severity in Tier 1/2 without EPSS score - manual triage required",
		Confidence: 75,
		Predicate: func(s Subject) bool {
			return s.CriticalOrHigh() && s.NoEPSS() && tier(s, model.Tier1, model.Tier2)
		},
	},
	{
		Name:       "default_pending",
		Decision:   model.DecisionPending,
		Reason:     "No specific auto-triage rule matched - requires manual review",
		Confidence: 50,
		Predicate:  func(Subject) bool { return true },
	},
}

// DefaultRules returns a copy of the built-in rule list.
func DefaultRules() []Rule {
	out := make([]Rule, len(defaultRules))
	copy(out, defaultRules)
	return out
}

// ValidateRules reports every malformed rule. A valid list has unique names, known decisions,
// predicates on every rule, and ends with a rule that always matches.
func ValidateRules(rules []Rule) []string {
	var problems []string
	if len(rules) == 0 {
		return []string{"rule list is empty"}
	}
	seen := map[string]int{}
	for i, r := range rules {
		label := fmt.Sprintf("rule %d", i)
		if r.Name == "" {
			problems = append(problems, label+": missing name")
		} else {
			label = fmt.Sprintf("rule %d (%s)", i, r.Name)
			if prev, dup := seen[r.Name]; dup {
				problems = append(problems, fmt.Sprintf("%s: duplicate name, first used by rule %d", label, prev))
			} else {
				seen[r.Name] = i
			}
		}
		if !r.Decision.Valid() {
			problems = append(problems, fmt.Sprintf("%s: invalid decision %q", label, r.Decision))
		}
		if r.Reason == "" {
			problems = append(problems, label+": missing reason")
		}
		if r.Confidence < 0 || r.Confidence > 100 {
			problems = append(problems, fmt.Sprintf("%s: confidence %d outside 0-100", label, r.Confidence))
		}
		if r.Predicate == nil {
			problems = append(problems, label+": missing predicate")
		}
	}

	last := rules[len(rules)-1]
	if last.Predicate != nil && !matchesEmpty(last) {
		problems = append(problems, fmt.Sprintf("rule %d (%s): last rule must always match", len(rules)-1, last.Name))
	}
	return problems
}

// matchesEmpty probes a rule with a subject that carries no context at all.
func matchesEmpty(r Rule) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return r.Predicate(Subject{Finding: &model.Finding{}})
}
