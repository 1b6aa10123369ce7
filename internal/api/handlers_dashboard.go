package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

// getDashboard returns the latest persisted VisibilityScore, computing
// and inserting one on demand if none exists yet.
func (h *handlers) getDashboard(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	score, err := h.deps.Store.LatestVisibilityScore(c.Context(), projectID)
	if err == nil {
		return c.JSON(score)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return respondErr(c, err)
	}
	return h.refreshDashboard(c)
}

// refreshDashboard recomputes and persists a fresh VisibilityScore for
// projectID as of now.
func (h *handlers) refreshDashboard(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	score, err := h.deps.Scoring.ComputeVisibilityScore(c.Context(), projectID, time.Now())
	if err != nil {
		return respondErr(c, err)
	}
	if err := h.deps.Store.InsertVisibilityScore(c.Context(), score); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(score)
}

func (h *handlers) getScoreHistory(c *fiber.Ctx) error {
	days := queryInt(c, "days", 30)
	since := time.Now().AddDate(0, 0, -days)

	history, err := h.deps.Store.ScoreHistory(c.Context(), c.Params("projectID"), since)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"scores": history})
}

func (h *handlers) getDailyMetrics(c *fiber.Ctx) error {
	days := queryInt(c, "days", 30)
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	platform := model.Provider(c.Query("platform"))

	metrics, err := h.deps.Store.ListDailyMetrics(c.Context(), c.Params("projectID"), from, to, platform)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"metrics": metrics})
}

func (h *handlers) getShareOfVoice(c *fiber.Ctx) error {
	projectID := c.Params("projectID")
	project, err := h.deps.Store.GetProject(c.Context(), projectID)
	if err != nil {
		return respondErr(c, err)
	}

	sov, err := h.deps.Scoring.CalculateShareOfVoice(c.Context(), projectID, project.PrimaryDomain, project.CompetitorDomains)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"share_of_voice": sov})
}

func (h *handlers) getTrends(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 10)
	trends, err := h.deps.Scoring.TrendingKeywords(c.Context(), c.Params("projectID"), limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"trends": trends})
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
