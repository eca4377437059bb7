// Package dashboard implements the resolvers for dashboard metrics.
package dashboard

import (
	"context"
	"time"

	"github.com/ortelius/pdvd-enricher/epss"
	"github.com/ortelius/pdvd-enricher/model"
	"github.com/ortelius/pdvd-enricher/store"
	"github.com/ortelius/pdvd-enricher/triage"
)

// StatisticsSource reports the triage decision breakdown.
type StatisticsSource interface {
	Statistics(ctx context.Context) (triage.Statistics, error)
}

// CoverageSource reports exploit score coverage.
type CoverageSource interface {
	Coverage(ctx context.Context) (epss.Coverage, error)
}

var decisionOrder = []model.TriageDecision{
	model.DecisionEscalate,
	model.DecisionPending,
	model.DecisionAcceptRisk,
	model.DecisionDismiss,
}

var tierOrder = []model.Tier{model.Tier1, model.Tier2, model.Tier3, model.Tier4, model.Archived}

// ResolveOverview handles fetching the high-level dashboard metrics
func ResolveOverview(ctx context.Context, st store.Store) (map[string]interface{}, error) {
	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	archived := 0
	for _, r := range repos {
		if r.Tier == model.Archived {
			archived++
		}
	}

	all, err := st.ListFindings(ctx, store.FindingFilter{})
	if err != nil {
		return nil, err
	}
	active := 0
	for _, f := range all {
		if f.Active {
			active++
		}
	}

	var lastSync interface{}
	latest, err := st.LatestRepositorySync(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		lastSync = latest.UTC().Format(time.RFC3339)
	}

	return map[string]interface{}{
		"total_repositories":    len(repos),
		"archived_repositories": archived,
		"total_findings":        len(all),
		"active_findings":       active,
		"last_repository_sync":  lastSync,
	}, nil
}

// ResolveSeverityDistribution counts active findings by severity
func ResolveSeverityDistribution(ctx context.Context, st store.Store) (map[string]interface{}, error) {
	active, err := st.ListFindings(ctx, store.FindingFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	var counts model.FindingCounts
	for _, f := range active {
		switch f.Severity {
		case model.SeverityCritical:
			counts.Critical++
		case model.SeverityHigh:
			counts.High++
		case model.SeverityMedium:
			counts.Medium++
		case model.SeverityLow:
			counts.Low++
		default:
			counts.Info++
		}
	}
	return map[string]interface{}{
		"critical": counts.Critical,
		"high":     counts.High,
		"medium":   counts.Medium,
		"low":      counts.Low,
		"info":     counts.Info,
	}, nil
}

// ResolveTierDistribution counts repositories per tier, every tier included
func ResolveTierDistribution(ctx context.Context, st store.Store) ([]map[string]interface{}, error) {
	repos, err := st.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[model.Tier]int, len(tierOrder))
	for _, r := range repos {
		counts[r.Tier]++
	}
	result := make([]map[string]interface{}, 0, len(tierOrder))
	for _, t := range tierOrder {
		result = append(result, map[string]interface{}{"tier": string(t), "count": counts[t]})
	}
	return result, nil
}

// ResolveTriageStatistics returns the decision breakdown in a fixed order
func ResolveTriageStatistics(ctx context.Context, src StatisticsSource) (map[string]interface{}, error) {
	stats, err := src.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]interface{}, 0, len(decisionOrder))
	for _, d := range decisionOrder {
		share := stats.ByDecision[d]
		rows = append(rows, map[string]interface{}{
			"decision":   string(d),
			"count":      share.Count,
			"percentage": share.Percentage,
		})
	}
	return map[string]interface{}{"total": stats.Total, "by_decision": rows}, nil
}

// ResolveScoreCoverage reports exploit score coverage
func ResolveScoreCoverage(ctx context.Context, src CoverageSource) (map[string]interface{}, error) {
	c, err := src.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"findings":   c.Findings,
		"with_cve":   c.WithCVE,
		"with_score": c.WithScore,
		"percent":    c.Percent,
	}, nil
}
