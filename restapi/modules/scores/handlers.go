// Package scores implements the REST API handler that refreshes exploit scores.
package scores

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/ortelius/pdvd-enricher/epss"
)

// Updater refreshes exploit scores on findings.
type Updater interface {
	Update(ctx context.Context, opts epss.Options) (epss.Stats, error)
	Coverage(ctx context.Context) (epss.Coverage, error)
}

// UpdateRequest is the body of POST /epss/update. An empty body updates every finding.
type UpdateRequest struct {
	FindingIDs    []string `json:"finding_ids"`
	ProductID     string   `json:"product_id"`
	ActiveOnly    bool     `json:"active_only"`
	TriggerTriage bool     `json:"trigger_triage"`
}

// PostUpdate handles POST requests for an exploit score update run
func PostUpdate(updater Updater) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req UpdateRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Invalid request body: " + err.Error(),
				})
			}
		}

		stats, err := updater.Update(c.UserContext(), epss.Options{
			FindingKeys:   req.FindingIDs,
			ProductKey:    req.ProductID,
			ActiveOnly:    req.ActiveOnly,
			TriggerTriage: req.TriggerTriage,
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

// GetCoverage handles GET requests for exploit score coverage
func GetCoverage(updater Updater) fiber.Handler {
	return func(c *fiber.Ctx) error {
		coverage, err := updater.Coverage(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"success": true, "coverage": coverage})
	}
}
