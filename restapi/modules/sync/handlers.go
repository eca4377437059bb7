// Package sync implements the REST API handlers that trigger repository and alert syncs.
package sync

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/pdvd-enricher/alerts"
	"github.com/ortelius/pdvd-enricher/collector"
)

// RepositorySyncer synchronizes repository records.
type RepositorySyncer interface {
	SyncAll(ctx context.Context, incremental bool) (collector.Stats, error)
	SyncOne(ctx context.Context, identity string) (bool, error)
}

// AlertSyncer runs the alert sync.
type AlertSyncer interface {
	Run(ctx context.Context, opts alerts.Options) (alerts.Stats, error)
}

// RepositorySyncRequest is the body of POST /sync/repositories. An empty body syncs the
// whole organization.
type RepositorySyncRequest struct {
	Repository  string `json:"repository"`
	Incremental bool   `json:"incremental"`
}

// AlertSyncRequest is the body of POST /sync/alerts.
type AlertSyncRequest struct {
	RepositoryID string `json:"repository_id"`
	Force        bool   `json:"force"`
	DryRun       bool   `json:"dry_run"`
	Limit        int    `json:"limit"`
	Project      bool   `json:"project"`
}

// PostSyncRepositories handles POST requests for a full, incremental or single repository sync
func PostSyncRepositories(syncer RepositorySyncer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RepositorySyncRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Invalid request body: " + err.Error(),
				})
			}
		}

		if repo := strings.TrimSpace(req.Repository); repo != "" {
			if _, _, err := collector.ParseIdentity(repo); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": err.Error(),
				})
			}
			created, err := syncer.SyncOne(c.UserContext(), repo)
			if err != nil {
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"success": false,
					"message": err.Error(),
				})
			}
			return c.JSON(fiber.Map{
				"success":         true,
				"repository":      repo,
				"product_created": created,
			})
		}

		stats, err := syncer.SyncAll(c.UserContext(), req.Incremental)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
				"stats":   stats,
			})
		}
		return c.JSON(fiber.Map{"success": true, "stats": stats})
	}
}

// PostSyncAlerts handles POST requests for an alert sync run
func PostSyncAlerts(syncer AlertSyncer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req AlertSyncRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Invalid request body: " + err.Error(),
				})
			}
		}
		if req.Limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "limit must not be negative",
			})
		}

		stats, err := syncer.Run(c.UserContext(), alerts.Options{
			RepositoryKey: req.RepositoryID,
			Force:         req.Force,
			DryRun:        req.DryRun,
			Limit:         req.Limit,
			Project:       req.Project,
		})
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"success": true, "stats": stats})
	}
}
