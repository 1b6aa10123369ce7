package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/provideradapter"
	"github.com/citewatch/tracker/internal/scheduler"
	"github.com/citewatch/tracker/internal/tracking"
)

type trackRequest struct {
	Platforms []model.Provider `json:"platforms"`
}

func (h *handlers) resolvePlatforms(requested []model.Provider) []model.Provider {
	if len(requested) > 0 {
		return requested
	}
	return h.deps.Registry.Enabled()
}

// trackKeyword runs a synchronous multi-provider tracking pass for one
// keyword, per spec §6's TrackKeyword operation.
func (h *handlers) trackKeyword(c *fiber.Ctx) error {
	keyword, err := h.deps.Store.GetKeyword(c.Context(), c.Params("keywordID"))
	if err != nil {
		return respondErr(c, err)
	}
	project, err := h.deps.Store.GetProject(c.Context(), keyword.ProjectID)
	if err != nil {
		return respondErr(c, err)
	}

	var req trackRequest
	_ = c.BodyParser(&req)
	platforms := h.resolvePlatforms(req.Platforms)

	results, err := h.deps.Engine.TrackKeyword(c.Context(), keyword, project, platforms, tracking.Options{})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"results": results})
}

// trackProject enqueues an async batch across every active keyword,
// dispatching through the scheduler rather than a bare goroutine, per
// spec §7's redesign flag.
func (h *handlers) trackProject(c *fiber.Ctx) error {
	var req trackRequest
	_ = c.BodyParser(&req)

	handle, err := h.deps.Planner.TrackProjectAsync(c.Context(), c.Params("projectID"), req.Platforms)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(handle)
}

func (h *handlers) trackingStatus(c *fiber.Ctx) error {
	since := time.Now().Add(-24 * time.Hour)
	counts, err := h.deps.Store.CountJobsSince(c.Context(), c.Params("projectID"), since)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"since": since, "counts": counts})
}

type scheduleRequest struct {
	KeywordIDs []string         `json:"keyword_ids"`
	Platforms  []model.Provider `json:"platforms"`
}

func (h *handlers) scheduleJobs(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	created, duplicates, err := h.deps.Planner.ScheduleJobs(c.Context(), scheduler.ScheduleRequest{
		ProjectID:   c.Params("projectID"),
		KeywordIDs:  req.KeywordIDs,
		Platforms:   req.Platforms,
		ScheduledAt: time.Now(),
	})
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"created": created, "duplicates": duplicates})
}

type quickTestRequest struct {
	KeywordText       string           `json:"keyword_text"`
	PrimaryDomain     string           `json:"primary_domain"`
	CompetitorDomains []string         `json:"competitor_domains"`
	Platforms         []model.Provider `json:"platforms"`
}

// quickTest runs the tracking pipeline against an ephemeral, never
// persisted (keyword, project) pair, per spec §6's QuickTest operation —
// useful for previewing a query before committing it to a project.
func (h *handlers) quickTest(c *fiber.Ctx) error {
	var req quickTestRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.KeywordText == "" || req.PrimaryDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "keyword_text and primary_domain are required"})
	}

	keyword := &model.Keyword{ID: uuid.NewString(), KeywordText: req.KeywordText, IsActive: true}
	project := &model.Project{
		ID:                uuid.NewString(),
		PrimaryDomain:     model.NormalizeDomain(req.PrimaryDomain),
		CompetitorDomains: req.CompetitorDomains,
	}

	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = h.deps.Registry.Enabled()
	}

	results := make([]tracking.TrackResult, 0, len(platforms))
	for _, platform := range platforms {
		results = append(results, h.deps.QuickEngine.TrackSingle(c.Context(), keyword, project, platform, tracking.Options{
			QueryOptions: provideradapter.Options{},
		}))
	}
	return c.JSON(fiber.Map{"results": results})
}
