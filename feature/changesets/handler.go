package changesets

import (
	"errors"
	"strconv"

	"geo-refresh/core/logger"
	"geo-refresh/core/reconcile"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for changesets.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the changeset routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/changesets")
	group.Get("/", h.HandleList)
	group.Get("/:name", h.HandleDownload)
	group.Delete("/", h.HandlePrune)
}

// HandleList lists local and archived changesets.
func (h *Handler) HandleList(c *fiber.Ctx) error {
	list, err := h.service.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(list)
}

// HandleDownload streams one changeset spreadsheet.
func (h *Handler) HandleDownload(c *fiber.Ctx) error {
	name := c.Params("name")
	rc, err := h.service.Open(c.UserContext(), name)
	switch {
	case errors.Is(err, ErrInvalidName):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	c.Attachment(name)
	c.Set(fiber.HeaderContentType, reconcile.ArtifactContentType)
	return c.SendStream(rc)
}

// HandlePrune deletes changesets older than the days query parameter.
func (h *Handler) HandlePrune(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	days := 0
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "days must be a positive integer"})
		}
		days = n
	}

	res, err := h.service.Prune(c.UserContext(), days)
	if err != nil {
		l.Error("Failed to prune changesets", zap.Error(err))
		status := fiber.StatusInternalServerError
		if errors.Is(err, ErrInvalidRetention) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{"error": err.Error(), "result": res})
	}
	return c.JSON(res)
}
