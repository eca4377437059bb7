// Package restapi provides the main router for the REST API endpoints.
package restapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/ortelius/pdvd-enricher/restapi/modules/scores"
	"github.com/ortelius/pdvd-enricher/restapi/modules/sync"
	"github.com/ortelius/pdvd-enricher/restapi/modules/triage"
)

// SetupRoutes configures all REST API routes and the GraphQL endpoint. The sync routes are
// only mounted when a GitHub client was wired.
func SetupRoutes(app *fiber.App, s *services.Services, schema graphql.Schema) {
	// API Group /api/v1
	api := app.Group("/api/v1")

	api.Post("/graphql", GraphQLHandler(schema))

	syncGroup := api.Group("/sync")
	if s.Collector != nil {
		syncGroup.Post("/repositories", sync.PostSyncRepositories(s.Collector))
	}
	if s.Alerts != nil {
		syncGroup.Post("/alerts", sync.PostSyncAlerts(s.Alerts))
	}

	epssGroup := api.Group("/epss")
	epssGroup.Post("/update", scores.PostUpdate(s.Scores))
	epssGroup.Get("/coverage", scores.GetCoverage(s.Scores))

	triageGroup := api.Group("/triage")
	triageGroup.Post("/apply", triage.PostApply(s.Triage))
	triageGroup.Get("/stats", triage.GetStats(s.Triage))
}
