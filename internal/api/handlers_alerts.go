package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/citewatch/tracker/internal/model"
	"github.com/citewatch/tracker/internal/store"
)

func (h *handlers) listAlerts(c *fiber.Ctx) error {
	filter := store.AlertFilter{
		ProjectID: c.Params("projectID"),
		AlertType: model.AlertType(c.Query("type")),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
	if v := c.Query("is_read"); v != "" {
		read := v == "true"
		filter.IsRead = &read
	}

	alerts, err := h.deps.Store.ListAlerts(c.Context(), filter)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"alerts": alerts})
}

func (h *handlers) unreadCount(c *fiber.Ctx) error {
	count, err := h.deps.Store.UnreadAlertCount(c.Context(), c.Params("projectID"))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"unread_count": count})
}

func (h *handlers) markRead(c *fiber.Ctx) error {
	if err := h.deps.Store.MarkAlertRead(c.Context(), c.Params("alertID")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) markAllRead(c *fiber.Ctx) error {
	if err := h.deps.Store.MarkAllAlertsRead(c.Context(), c.Params("projectID")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) deleteAlert(c *fiber.Ctx) error {
	if err := h.deps.Store.DeleteAlert(c.Context(), c.Params("alertID")); err != nil {
		return respondErr(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
