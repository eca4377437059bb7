// Package triage implements the REST API handlers for auto-triage.
package triage

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/pdvd-enricher/triage"
)

// Engine applies and reports triage decisions.
type Engine interface {
	Apply(ctx context.Context, opts triage.Options) (triage.Stats, error)
	Statistics(ctx context.Context) (triage.Statistics, error)
}

// ApplyRequest is the body of POST /triage/apply. An empty body triages every finding.
type ApplyRequest struct {
	FindingIDs []string `json:"finding_ids"`
	ProductID  string   `json:"product_id"`
	ActiveOnly bool     `json:"active_only"`
	DryRun     bool     `json:"dry_run"`
}

// PostApply handles POST requests for a triage run
func PostApply(engine Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ApplyRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Invalid request body: " + err.Error(),
				})
			}
		}

		stats, err := engine.Apply(c.UserContext(), triage.Options{
			FindingKeys: req.FindingIDs,
			ProductKey:  req.ProductID,
			ActiveOnly:  req.ActiveOnly,
			DryRun:      req.DryRun,
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

// GetStats handles GET requests for the decision breakdown of active findings
func GetStats(engine Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := engine.Statistics(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"success": true, "statistics": stats})
	}
}
