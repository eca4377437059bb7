// Package findings defines the GraphQL types for projected findings.
package findings

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/pdvd-enricher/model"
)

// SeverityEnum lists the finding severities.
var SeverityEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "Severity",
	Values: graphql.EnumValueConfigMap{
		"CRITICAL": &graphql.EnumValueConfig{Value: model.SeverityCritical},
		"HIGH":     &graphql.EnumValueConfig{Value: model.SeverityHigh},
		"MEDIUM":   &graphql.EnumValueConfig{Value: model.SeverityMedium},
		"LOW":      &graphql.EnumValueConfig{Value: model.SeverityLow},
		"INFO":     &graphql.EnumValueConfig{Value: model.SeverityInfo},
	},
})

// DecisionEnum lists the auto-triage decisions.
var DecisionEnum = graphql.NewEnum(graphql.EnumConfig{
	Name: "TriageDecision",
	Values: graphql.EnumValueConfigMap{
		"PENDING":     &graphql.EnumValueConfig{Value: string(model.DecisionPending)},
		"DISMISS":     &graphql.EnumValueConfig{Value: string(model.DecisionDismiss)},
		"ESCALATE":    &graphql.EnumValueConfig{Value: string(model.DecisionEscalate)},
		"ACCEPT_RISK": &graphql.EnumValueConfig{Value: string(model.DecisionAcceptRisk)},
	},
})

// FindingType represents one projected finding with its exploit score and triage outcome.
var FindingType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Finding",
	Fields: graphql.Fields{
		"key":                  &graphql.Field{Type: graphql.String},
		"title":                &graphql.Field{Type: graphql.String},
		"description":          &graphql.Field{Type: graphql.String},
		"severity":             &graphql.Field{Type: graphql.String},
		"unique_id_from_tool":  &graphql.Field{Type: graphql.String},
		"vuln_id_from_tool":    &graphql.Field{Type: graphql.String},
		"cve":                  &graphql.Field{Type: graphql.String},
		"cwe":                  &graphql.Field{Type: graphql.Int},
		"cvssv3":               &graphql.Field{Type: graphql.String},
		"cvssv3_score":         &graphql.Field{Type: graphql.Float},
		"cvssv3_rating":        &graphql.Field{Type: graphql.String},
		"component_name":       &graphql.Field{Type: graphql.String},
		"component_version":    &graphql.Field{Type: graphql.String},
		"component_purl":       &graphql.Field{Type: graphql.String},
		"file_path":            &graphql.Field{Type: graphql.String},
		"line":                 &graphql.Field{Type: graphql.Int},
		"mitigation":           &graphql.Field{Type: graphql.String},
		"date":                 &graphql.Field{Type: graphql.String},
		"active":               &graphql.Field{Type: graphql.Boolean},
		"is_mitigated":         &graphql.Field{Type: graphql.Boolean},
		"risk_accepted":        &graphql.Field{Type: graphql.Boolean},
		"epss_score":           &graphql.Field{Type: graphql.Float},
		"epss_percentile":      &graphql.Field{Type: graphql.Float},
		"auto_triage_decision": &graphql.Field{Type: graphql.String},
		"auto_triage_reason":   &graphql.Field{Type: graphql.String},
		"auto_triaged_at":      &graphql.Field{Type: graphql.String},
	},
})
