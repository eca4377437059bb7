// Package graphql assembles the read-only GraphQL schema over repositories, findings and
// triage statistics.
package graphql

import (
	"github.com/graphql-go/graphql"
	"github.com/ortelius/pdvd-enricher/graphql/modules/dashboard"
	"github.com/ortelius/pdvd-enricher/graphql/modules/findings"
	"github.com/ortelius/pdvd-enricher/graphql/modules/repositories"
	"github.com/ortelius/pdvd-enricher/store"
)

// Sources are the read models the schema resolves against.
type Sources struct {
	Store    store.Store
	Triage   dashboard.StatisticsSource
	Coverage dashboard.CoverageSource
}

// CreateSchema mounts the query fields of every module under one root Query type.
func CreateSchema(src Sources) (graphql.Schema, error) {
	fields := graphql.Fields{}
	for _, module := range []graphql.Fields{
		repositories.GetQueryFields(src.Store),
		findings.GetQueryFields(src.Store),
		dashboard.GetQueryFields(src.Store, src.Triage, src.Coverage),
	} {
		for name, field := range module {
			fields[name] = field
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: fields,
		}),
	})
}
