// Package findings defines the GraphQL queries for projected findings.
package findings

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/pdvd-enricher/store"
)

// GetQueryFields returns the finding queries to be mounted in the root schema.
func GetQueryFields(st store.Store) graphql.Fields {
	return graphql.Fields{
		"finding": &graphql.Field{
			Type: FindingType,
			Args: graphql.FieldConfigArgument{
				"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return ResolveFinding(p.Context, st, p.Args["key"].(string))
			},
		},
		"findings": &graphql.Field{
			Type: graphql.NewList(FindingType),
			Args: graphql.FieldConfigArgument{
				"product_key": &graphql.ArgumentConfig{Type: graphql.String},
				"active_only": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: true},
				"severity":    &graphql.ArgumentConfig{Type: SeverityEnum},
				"decision":    &graphql.ArgumentConfig{Type: DecisionEnum},
				"limit":       &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				q := Query{Limit: p.Args["limit"].(int)}
				q.ProductKey, _ = p.Args["product_key"].(string)
				q.ActiveOnly, _ = p.Args["active_only"].(bool)
				q.Severity, _ = p.Args["severity"].(string)
				q.Decision, _ = p.Args["decision"].(string)
				return ResolveFindings(p.Context, st, q)
			},
		},
	}
}
