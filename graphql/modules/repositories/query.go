// Package repositories defines the GraphQL queries for tracked repositories.
package repositories

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/pdvd-enricher/store"
)

// GetQueryFields returns the repository queries to be mounted in the root schema.
func GetQueryFields(st store.Store) graphql.Fields {
	return graphql.Fields{
		"repository": &graphql.Field{
			Type: RepositoryType,
			Args: graphql.FieldConfigArgument{
				"key":       &graphql.ArgumentConfig{Type: graphql.String},
				"full_name": &graphql.ArgumentConfig{Type: graphql.String},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				key, _ := p.Args["key"].(string)
				fullName, _ := p.Args["full_name"].(string)
				return ResolveRepository(p.Context, st, key, fullName)
			},
		},
		"repositories": &graphql.Field{
			Type: graphql.NewList(RepositoryType),
			Args: graphql.FieldConfigArgument{
				"tier":  &graphql.ArgumentConfig{Type: TierEnum},
				"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				tier, _ := p.Args["tier"].(string)
				limit := p.Args["limit"].(int)
				return ResolveRepositories(p.Context, st, tier, limit)
			},
		},
	}
}
