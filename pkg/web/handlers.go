package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
)

type APIHandlers struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	validator   *validator.Validate
}

func NewAPIHandlers(
	logger *slog.Logger,
	persistence persistence.Persistence,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		logger:      logger.With("module", "web"),
		persistence: persistence,
		validator:   validator,
	}
}

// NewApp builds the fiber application with all routes registered.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()

	app.Get("/health", handlers.Health)

	workflows := app.Group("/workflows")
	workflows.Get("/", handlers.GetWorkflows)
	workflows.Post("/", handlers.CreateWorkflow)
	workflows.Get("/:id", handlers.GetWorkflow)

	app.Get("/runs/:id", handlers.GetRun)

	app.Post("/hooks/catch/:userID/:workflowID", handlers.CatchHook)

	return app
}

func (h *APIHandlers) Health(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest

	err := json.Unmarshal(c.Body(), &req)
	if err != nil {
		return badRequest(c, "Invalid JSON body: "+err.Error())
	}

	err = h.validator.Struct(req)
	if err != nil {
		return badRequest(c, formatValidationError(err))
	}

	if req.Trigger.Kind == models.TriggerKindSchedule && req.Trigger.CronExpr == "" {
		return badRequest(c, "schedule triggers require a cron expression")
	}

	workflow := req.ToModel()

	err = workflow.Validate(h.validator)
	if err != nil {
		return badRequest(c, formatValidationError(err))
	}

	err = h.persistence.SaveWorkflow(c.Context(), workflow)
	if err != nil {
		return handlePersistenceError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Workflow created",
		"workflow_id", workflow.ID,
		"owner", workflow.Owner,
		"stages", len(workflow.Actions))

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	run, err := h.persistence.RunByID(c.Context(), c.Params("id"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	return c.JSON(run)
}

// CatchHook ingests a webhook trigger. The payload becomes the run's frozen
// context and the run plus its outbox record are written in one transaction;
// the relay picks the record up from there. Nothing is published from the
// request path.
func (h *APIHandlers) CatchHook(c fiber.Ctx) error {
	workflow, err := h.persistence.WorkflowByID(c.Context(), c.Params("workflowID"))
	if err != nil {
		return handlePersistenceError(c, err)
	}

	if workflow.Owner != "" && workflow.Owner != c.Params("userID") {
		return notFound(c, "workflow not found")
	}

	if workflow.Trigger.Kind != models.TriggerKindWebhook {
		return badRequest(c, "workflow is not webhook-triggered")
	}

	payload := make(map[string]any)

	if len(c.Body()) > 0 {
		err = json.Unmarshal(c.Body(), &payload)
		if err != nil {
			return badRequest(c, "Invalid JSON payload: "+err.Error())
		}
	}

	if workflow.Trigger.PayloadSchema != nil {
		err = validatePayload(workflow.Trigger.PayloadSchema, payload)
		if err != nil {
			return unprocessable(c, err.Error())
		}
	}

	run := &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflow.ID,
		Context:    payload,
		Status:     models.RunStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	err = h.persistence.CreateRun(c.Context(), run)
	if err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Webhook trigger accepted",
		"workflow_id", workflow.ID,
		"run_id", run.ID)

	return c.Status(fiber.StatusAccepted).JSON(HookResponse{
		RunID:      run.ID,
		WorkflowID: workflow.ID,
		Status:     string(run.Status),
	})
}

func validatePayload(schema map[string]any, payload map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(schema)
	dataLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate payload: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, violation := range result.Errors() {
			details = append(details, violation.String())
		}

		return fmt.Errorf("payload does not match trigger schema: %s", strings.Join(details, "; "))
	}

	return nil
}

func formatValidationError(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			details = append(details, fieldError.Field()+" failed "+fieldError.Tag()+" validation")
		}

		return strings.Join(details, "; ")
	}

	return err.Error()
}
