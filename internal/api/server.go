// Package api implements the HTTP control surface (spec §6): CRUD over
// Projects/Keywords/Competitors, synchronous and asynchronous tracking
// triggers, dashboard/score reads, and alert management.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/citewatch/tracker/internal/alerting"
	"github.com/citewatch/tracker/internal/metrics"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/scheduler"
	"github.com/citewatch/tracker/internal/scoring"
	"github.com/citewatch/tracker/internal/store"
	"github.com/citewatch/tracker/internal/tracking"
)

// Deps bundles everything the control surface needs. QuickEngine is a
// second tracking.Engine constructed over QuickStore so QuickTest never
// touches persisted state.
type Deps struct {
	Store       store.Store
	Engine      *tracking.Engine
	QuickEngine *tracking.Engine
	Scoring     *scoring.Service
	Alerts      *alerting.Engine
	Planner     *scheduler.Planner
	Registry    *provideradapter.Registry
}

// NewServer builds a fiber app with every route from spec §6 wired to
// deps, following sdey02-AWS-Agent's api/main.go bootstrap shape
// (recover -> logger -> cors -> versioned route group).
func NewServer(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		BodyLimit:    4 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PATCH,PUT,DELETE,OPTIONS",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	metrics.Init()
	app.Get("/metrics", metrics.Handler())

	h := &handlers{deps: deps}

	v1 := app.Group("/api/v1")

	projects := v1.Group("/projects")
	projects.Post("/", h.createProject)
	projects.Get("/", h.listProjects)
	projects.Get("/:projectID", h.getProject)
	projects.Patch("/:projectID", h.updateProject)
	projects.Delete("/:projectID", h.deleteProject)
	projects.Post("/:projectID/competitors", h.addCompetitor)
	projects.Delete("/:projectID/competitors/:domain", h.removeCompetitor)

	projects.Post("/:projectID/keywords", h.createKeyword)
	projects.Get("/:projectID/keywords", h.listKeywords)

	keywords := v1.Group("/keywords")
	keywords.Patch("/:keywordID", h.updateKeyword)
	keywords.Delete("/:keywordID", h.deleteKeyword)
	keywords.Post("/:keywordID/track", h.trackKeyword)

	projects.Post("/:projectID/track", h.trackProject)
	projects.Get("/:projectID/tracking-status", h.trackingStatus)
	projects.Post("/:projectID/schedule", h.scheduleJobs)

	v1.Post("/quick-test", h.quickTest)

	projects.Get("/:projectID/dashboard", h.getDashboard)
	projects.Post("/:projectID/dashboard/refresh", h.refreshDashboard)
	projects.Get("/:projectID/scores/history", h.getScoreHistory)
	projects.Get("/:projectID/metrics/daily", h.getDailyMetrics)
	projects.Get("/:projectID/share-of-voice", h.getShareOfVoice)
	projects.Get("/:projectID/trends", h.getTrends)

	alerts := projects.Group("/:projectID/alerts")
	alerts.Get("/", h.listAlerts)
	alerts.Get("/unread-count", h.unreadCount)
	alerts.Post("/read-all", h.markAllRead)
	alertByID := v1.Group("/alerts")
	alertByID.Post("/:alertID/read", h.markRead)
	alertByID.Delete("/:alertID", h.deleteAlert)

	return app
}

// Shutdown drains in-flight requests within the given grace window,
// mirroring the teacher's http.Server.Shutdown usage in cmd/serve.go.
func Shutdown(ctx context.Context, app *fiber.App) error {
	if err := app.ShutdownWithContext(ctx); err != nil {
		zap.L().Error("api: shutdown", zap.Error(err))
		return err
	}
	return nil
}
