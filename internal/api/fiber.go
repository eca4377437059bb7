// Package api builds the fiber application served by the serve command.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/ortelius/pdvd-enricher/graphql"
	"github.com/ortelius/pdvd-enricher/internal/services"
	"github.com/ortelius/pdvd-enricher/restapi"
)

// NewFiberApp creates and configures a Fiber app with REST and GraphQL routes
func NewFiberApp(s *services.Services) (*fiber.App, error) {
	schema, err := graphql.CreateSchema(graphql.Sources{
		Store:    s.Store,
		Triage:   s.Triage,
		Coverage: s.Scores,
	})
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      "pdvd-enricher API v1.0",
		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute, // organization syncs run inside the request
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "http://localhost:3000,http://localhost:4000,http://127.0.0.1:3000,http://127.0.0.1:4000",
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, HEAD, OPTIONS",
	}))

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("graphql_op", "-")
		return c.Next()
	})
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} - ${method} ${path} ${locals:graphql_op} ${latency}\n",
	}))

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	restapi.SetupRoutes(app, s, schema)

	return app, nil
}
