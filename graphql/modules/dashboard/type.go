// Package dashboard defines the GraphQL types for the enrichment dashboard.
package dashboard

import (
	"github.com/graphql-go/graphql"
)

// DashboardOverviewType represents the high-level metrics for the top cards
var DashboardOverviewType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DashboardOverview",
	Fields: graphql.Fields{
		"total_repositories":    &graphql.Field{Type: graphql.Int},
		"archived_repositories": &graphql.Field{Type: graphql.Int},
		"total_findings":        &graphql.Field{Type: graphql.Int},
		"active_findings":       &graphql.Field{Type: graphql.Int},
		"last_repository_sync":  &graphql.Field{Type: graphql.String},
	},
})

// SeverityDistributionType represents the active findings by severity
var SeverityDistributionType = graphql.NewObject(graphql.ObjectConfig{
	Name: "SeverityDistribution",
	Fields: graphql.Fields{
		"critical": &graphql.Field{Type: graphql.Int},
		"high":     &graphql.Field{Type: graphql.Int},
		"medium":   &graphql.Field{Type: graphql.Int},
		"low":      &graphql.Field{Type: graphql.Int},
		"info":     &graphql.Field{Type: graphql.Int},
	},
})

// TierCountType is one bar of the tier distribution chart
var TierCountType = graphql.NewObject(graphql.ObjectConfig{
	Name: "TierCount",
	Fields: graphql.Fields{
		"tier":  &graphql.Field{Type: graphql.String},
		"count": &graphql.Field{Type: graphql.Int},
	},
})

// DecisionShareType is one row of the triage breakdown
var DecisionShareType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DecisionShare",
	Fields: graphql.Fields{
		"decision":   &graphql.Field{Type: graphql.String},
		"count":      &graphql.Field{Type: graphql.Int},
		"percentage": &graphql.Field{Type: graphql.Float},
	},
})

// TriageStatisticsType is the decision breakdown over active findings
var TriageStatisticsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "TriageStatistics",
	Fields: graphql.Fields{
		"total":       &graphql.Field{Type: graphql.Int},
		"by_decision": &graphql.Field{Type: graphql.NewList(DecisionShareType)},
	},
})

// ScoreCoverageType reports how many findings carry an exploit score
var ScoreCoverageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ScoreCoverage",
	Fields: graphql.Fields{
		"findings":   &graphql.Field{Type: graphql.Int},
		"with_cve":   &graphql.Field{Type: graphql.Int},
		"with_score": &graphql.Field{Type: graphql.Int},
		"percent":    &graphql.Field{Type: graphql.Float},
	},
})
