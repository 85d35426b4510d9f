// Package api exposes the journey planner over HTTP: plan queries, stop
// departure boards, route trip listings, and alternative-departure lookups
// on a previously planned leg.
package api

import (
	"time"

	"github.com/dsgvo/journeyplanner/internal/config"
	"github.com/dsgvo/journeyplanner/internal/graph"
	"github.com/dsgvo/journeyplanner/internal/routing"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Server holds everything handlers need: the immutable graph, a router
// over it, and the default speeds a query may omit. Safe for concurrent
// use — Store and Router hold no per-request state.
type Server struct {
	store    *graph.Store
	router   *routing.Router
	defaults config.DefaultRouting
	useCache bool
	cacheTTL time.Duration
}

// NewServer builds a Server. useCache enables the Redis plan cache; callers
// that haven't configured Redis should pass false.
func NewServer(store *graph.Store, allowReopen bool, defaults config.DefaultRouting, useCache bool) *Server {
	return &Server{
		store:    store,
		router:   routing.NewRouter(store, allowReopen),
		defaults: defaults,
		useCache: useCache,
		cacheTTL: 10 * time.Minute,
	}
}

// NewApp builds a configured fiber.App with all routes registered.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "journeyplanner",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,OPTIONS",
	}))

	app.Get("/health", s.handleHealth)
	app.Get("/v1/plan", s.handlePlan)
	app.Get("/v1/stops/:id/departures", s.handleStopDepartures)
	app.Get("/v1/routes/:id/trips", s.handleRouteTrips)
	app.Get("/v1/plan/:legId/earlier", s.handlePlanLegEarlier)
	app.Get("/v1/plan/:legId/later", s.handlePlanLegLater)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "endpoint not found"})
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "nodes": s.store.NodeCount()})
}
