// Package repositories defines the GraphQL types for tracked repositories.
package repositories

import (
	"github.com/graphql-go/graphql"
)

// TierEnum lists the repository criticality tiers.
var TierEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "Tier",
	Values: graphql.EnumValueConfigMap{
		"TIER1":    &graphql.EnumValueConfig{Value: "tier1"},
		"TIER2":    &graphql.EnumValueConfig{Value: "tier2"},
		"TIER3":    &graphql.EnumValueConfig{Value: "tier3"},
		"TIER4":    &graphql.EnumValueConfig{Value: "tier4"},
		"ARCHIVED": &graphql.EnumValueConfig{Value: "archived"},
	},
})

// AlertCountsType holds the mirrored alert counters of a repository.
var AlertCountsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "AlertCounts",
	Fields: graphql.Fields{
		"dependabot_alerts":      &graphql.Field{Type: graphql.Int},
		"codeql_alerts":          &graphql.Field{Type: graphql.Int},
		"secret_scanning_alerts": &graphql.Field{Type: graphql.Int},
	},
})

// FindingCountsType holds the active finding counters of a repository by severity.
var FindingCountsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "FindingCounts",
	Fields: graphql.Fields{
		"critical": &graphql.Field{Type: graphql.Int},
		"high":     &graphql.Field{Type: graphql.Int},
		"medium":   &graphql.Field{Type: graphql.Int},
		"low":      &graphql.Field{Type: graphql.Int},
		"info":     &graphql.Field{Type: graphql.Int},
	},
})

// SignalType exposes one detected signal by name.
var SignalType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Signal",
	Fields: graphql.Fields{
		"name":  &graphql.Field{Type: graphql.String},
		"value": &graphql.Field{Type: graphql.Boolean},
	},
})

// RepositoryType represents a tracked repository with its classification.
var RepositoryType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Repository",
	Fields: graphql.Fields{
		"key":                     &graphql.Field{Type: graphql.String},
		"name":                    &graphql.Field{Type: graphql.String},
		"full_name":               &graphql.Field{Type: graphql.String},
		"url":                     &graphql.Field{Type: graphql.String},
		"product_key":             &graphql.Field{Type: graphql.String},
		"tier":                    &graphql.Field{Type: graphql.String},
		"business_criticality":    &graphql.Field{Type: graphql.String},
		"tier_confidence":         &graphql.Field{Type: graphql.Int},
		"tier_reasons":            &graphql.Field{Type: graphql.NewList(graphql.String)},
		"signals":                 &graphql.Field{Type: graphql.NewList(SignalType)},
		"last_commit_date":        &graphql.Field{Type: graphql.String},
		"days_since_last_commit":  &graphql.Field{Type: graphql.Int},
		"active_contributors_90d": &graphql.Field{Type: graphql.Int},
		"readme_summary":          &graphql.Field{Type: graphql.String},
		"primary_language":        &graphql.Field{Type: graphql.String},
		"primary_framework":       &graphql.Field{Type: graphql.String},
		"ownership_confidence":    &graphql.Field{Type: graphql.Int},
		"alert_counts":            &graphql.Field{Type: AlertCountsType},
		"last_alert_sync":         &graphql.Field{Type: graphql.String},
		"finding_counts":          &graphql.Field{Type: FindingCountsType},
		"last_synced_at":          &graphql.Field{Type: graphql.String},
	},
})
