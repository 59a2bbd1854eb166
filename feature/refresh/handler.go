package refresh

import (
	"errors"

	"geo-refresh/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for refreshes.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the refresh routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	app.Post("/refresh", h.HandleRefresh)
	app.Post("/schema", h.HandleSchema)

	group := app.Group("/jobs")
	group.Get("/", h.HandleListJobs)
	group.Post("/:name/run", h.HandleRunJob)
}

// refreshBody is the JSON body of POST /refresh.
type refreshBody struct {
	Source      string      `json:"source"`
	Target      string      `json:"target"`
	Method      string      `json:"method"`
	IDField     string      `json:"id_field"`
	Credentials Credentials `json:"credentials"`
	ChunkSize   int         `json:"chunk_size"`
}

// HandleRefresh runs a refresh described by the request body.
func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "details": err.Error()})
	}
	method, err := ParseMethod(body.Method)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	req, err := NewRequest(body.Source, body.Target, method, body.IDField, body.Credentials, body.ChunkSize)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Refresh requested", zap.String("source", req.Source), zap.String("target", req.Target), zap.String("method", string(req.Method)))
	return h.run(c, l, req)
}

// HandleSchema compares the schemas of the source and target in the body.
func (h *Handler) HandleSchema(c *fiber.Ctx) error {
	var body refreshBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "details": err.Error()})
	}
	req, err := NewRequest(body.Source, body.Target, MethodTruncate, "", body.Credentials, 0)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	check, err := h.service.CheckSchema(c.UserContext(), req)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(check)
}

// HandleListJobs lists the configured jobs and profile names.
func (h *Handler) HandleListJobs(c *fiber.Ctx) error {
	jobs := h.service.Jobs()
	return c.JSON(fiber.Map{
		"jobs":     jobs.Jobs,
		"profiles": jobs.ProfileNames(),
	})
}

// HandleRunJob runs a job from the jobs file.
func (h *Handler) HandleRunJob(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	name := c.Params("name")

	job, err := h.service.Jobs().Job(name)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	req, err := job.Request()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	l.Info("Job run requested", zap.String("job", name))
	return h.run(c, l, req)
}

// run executes the refresh and maps aborts to a status code. Precondition
// failures are the caller's problem, anything later is ours.
func (h *Handler) run(c *fiber.Ctx, l *zap.Logger, req Request) error {
	res, err := h.service.Refresh(c.UserContext(), req)
	if err == nil {
		return c.JSON(res)
	}

	status := fiber.StatusInternalServerError
	var ae *AbortError
	if errors.As(err, &ae) {
		switch ae.Stage {
		case StageRequest, StageValidateSource, StageValidateTarget, StageSchemaCheck:
			status = fiber.StatusUnprocessableEntity
		}
	}
	l.Warn("Refresh aborted", zap.Error(err))
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "result": res})
}
