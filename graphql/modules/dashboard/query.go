// Package dashboard defines the GraphQL queries for the dashboard.
package dashboard

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/pdvd-enricher/store"
)

// GetQueryFields returns the dashboard queries to be mounted in the root schema
func GetQueryFields(st store.Store, triage StatisticsSource, scores CoverageSource) graphql.Fields {
	return graphql.Fields{
		// Top cards
		"dashboardOverview": &graphql.Field{
			Type: DashboardOverviewType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveOverview(p.Context, st)
			},
		},
		// Severity chart
		"dashboardSeverity": &graphql.Field{
			Type: SeverityDistributionType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveSeverityDistribution(p.Context, st)
			},
		},
		"dashboardTiers": &graphql.Field{
			Type: graphql.NewList(TierCountType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveTierDistribution(p.Context, st)
			},
		},
		"triageStatistics": &graphql.Field{
			Type: TriageStatisticsType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveTriageStatistics(p.Context, triage)
			},
		},
		"scoreCoverage": &graphql.Field{
			Type: ScoreCoverageType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveScoreCoverage(p.Context, scores)
			},
		},
	}
}
