package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/citewatch/tracker/internal/model"
)

type handlers struct {
	deps Deps
}

type createProjectRequest struct {
	OrganizationID    string   `json:"organization_id"`
	PrimaryDomain     string   `json:"primary_domain"`
	CompetitorDomains []string `json:"competitor_domains"`
}

func (h *handlers) createProject(c *fiber.Ctx) error {
	var req createProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.PrimaryDomain == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "primary_domain is required"})
	}

	now := time.Now()
	project := &model.Project{
		ID:             uuid.NewString(),
		OrganizationID: req.OrganizationID,
		PrimaryDomain:  model.NormalizeDomain(req.PrimaryDomain),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, d := range req.CompetitorDomains {
		if err := project.AddCompetitor(d); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	if err := h.deps.Store.CreateProject(c.Context(), project); err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(project)
}

func (h *handlers) listProjects(c *fiber.Ctx) error {
	projects, err := h.deps.Store.ListActiveProjects(c.Context())
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"projects": projects})
}

func (h *handlers) getProject(c *fiber.Ctx) error {
	project, err := h.deps.Store.GetProject(c.Context(), c.Params("projectID"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(project)
}

type updateProjectRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *handlers) updateProject(c *fiber.Ctx) error {
	project, err := h.deps.Store.GetProject(c.Context(), c.Params("projectID"))
	if err != nil {
		return respondErr(c, err)
	}

	var req updateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.IsActive != nil {
		project.IsActive = *req.IsActive
	}
	project.UpdatedAt = time.Now()

	if err := h.deps.Store.UpdateProject(c.Context(), project); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(project)
}

func (h *handlers) deleteProject(c *fiber.Ctx) error {
	if err := h.deps.Store.ArchiveProject(c.Context(), c.Params("projectID")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type competitorRequest struct {
	Domain string `json:"domain"`
}

func (h *handlers) addCompetitor(c *fiber.Ctx) error {
	project, err := h.deps.Store.GetProject(c.Context(), c.Params("projectID"))
	if err != nil {
		return respondErr(c, err)
	}
	var req competitorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if err := project.AddCompetitor(req.Domain); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	project.UpdatedAt = time.Now()
	if err := h.deps.Store.UpdateProject(c.Context(), project); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(project)
}

func (h *handlers) removeCompetitor(c *fiber.Ctx) error {
	project, err := h.deps.Store.GetProject(c.Context(), c.Params("projectID"))
	if err != nil {
		return respondErr(c, err)
	}
	project.RemoveCompetitor(c.Params("domain"))
	project.UpdatedAt = time.Now()
	if err := h.deps.Store.UpdateProject(c.Context(), project); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(project)
}

type createKeywordRequest struct {
	KeywordText   string            `json:"keyword_text"`
	PriorityLevel int               `json:"priority_level"`
	FunnelStage   model.FunnelStage `json:"funnel_stage"`
}

func (h *handlers) createKeyword(c *fiber.Ctx) error {
	var req createKeywordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.KeywordText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "keyword_text is required"})
	}
	priority := req.PriorityLevel
	if priority < 1 || priority > 5 {
		priority = 3
	}

	keyword := &model.Keyword{
		ID:            uuid.NewString(),
		ProjectID:     c.Params("projectID"),
		KeywordText:   req.KeywordText,
		PriorityLevel: priority,
		FunnelStage:   req.FunnelStage,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	if err := h.deps.Store.CreateKeyword(c.Context(), keyword); err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(keyword)
}

func (h *handlers) listKeywords(c *fiber.Ctx) error {
	keywords, err := h.deps.Store.ListActiveKeywords(c.Context(), c.Params("projectID"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"keywords": keywords})
}

type updateKeywordRequest struct {
	IsActive      *bool             `json:"is_active"`
	PriorityLevel *int              `json:"priority_level"`
	FunnelStage   model.FunnelStage `json:"funnel_stage,omitempty"`
}

func (h *handlers) updateKeyword(c *fiber.Ctx) error {
	keyword, err := h.deps.Store.GetKeyword(c.Context(), c.Params("keywordID"))
	if err != nil {
		return respondErr(c, err)
	}
	var req updateKeywordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.IsActive != nil {
		keyword.IsActive = *req.IsActive
	}
	if req.PriorityLevel != nil && *req.PriorityLevel >= 1 && *req.PriorityLevel <= 5 {
		keyword.PriorityLevel = *req.PriorityLevel
	}
	if req.FunnelStage != "" {
		keyword.FunnelStage = req.FunnelStage
	}
	if err := h.deps.Store.UpdateKeyword(c.Context(), keyword); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(keyword)
}

func (h *handlers) deleteKeyword(c *fiber.Ctx) error {
	if err := h.deps.Store.DeleteKeyword(c.Context(), c.Params("keywordID")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
