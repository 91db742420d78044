package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
	"github.com/dukex/flowbox/pkg/web"
)

type fakePersistence struct {
	workflows map[string]*models.Workflow
	runs      map[string]*models.Run
	outboxed  []string
}

func newFakePersistence() *fakePersistence {
	return &fakePersistence{
		workflows: make(map[string]*models.Workflow),
		runs:      make(map[string]*models.Run),
	}
}

func (f *fakePersistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	workflows := make([]*models.Workflow, 0, len(f.workflows))
	for _, workflow := range f.workflows {
		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (f *fakePersistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	workflow, ok := f.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (f *fakePersistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	f.workflows[workflow.ID] = workflow

	return nil
}

func (f *fakePersistence) CreateRun(_ context.Context, run *models.Run) error {
	f.runs[run.ID] = run
	f.outboxed = append(f.outboxed, run.ID)

	return nil
}

func (f *fakePersistence) RunByID(_ context.Context, id string) (*models.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	return run, nil
}

func (f *fakePersistence) UpdateRunStatus(_ context.Context, _ string, _ models.RunStatus) error {
	return nil
}

func (f *fakePersistence) UnprocessedOutbox(_ context.Context, _ int) ([]*models.OutboxRecord, error) {
	return nil, nil
}

func (f *fakePersistence) MarkOutboxProcessed(_ context.Context, _ []string) error { return nil }

func (f *fakePersistence) HealthCheck(_ context.Context) error { return nil }

func (f *fakePersistence) Close(_ context.Context) error { return nil }

func setupTestApp(t *testing.T) (*fiber.App, *fakePersistence) {
	t.Helper()

	store := newFakePersistence()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	handlers := web.NewAPIHandlers(logger, store, validator.New(validator.WithRequiredStructEnabled()))

	return web.NewApp(handlers), store
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buffer bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buffer).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buffer)
	req.Header.Set("Content-Type", "application/json")

	return req
}

func webhookWorkflow(id string, schema map[string]any) *models.Workflow {
	return &models.Workflow{
		ID:   id,
		Name: "Payout on signup",
		Trigger: models.TriggerConfig{
			Kind:          models.TriggerKindWebhook,
			PayloadSchema: schema,
		},
		Actions: []models.ActionSpec{
			{ID: "a-0", StageIndex: 0, HandlerKind: "transfer", Parameters: map[string]string{}},
		},
	}
}

func TestCreateWorkflow(t *testing.T) {
	app, store := setupTestApp(t)

	req := jsonRequest(t, http.MethodPost, "/workflows", web.CreateWorkflowRequest{
		Name:    "Payout on signup",
		Owner:   "user-1",
		Trigger: models.TriggerConfig{Kind: models.TriggerKindWebhook},
		Actions: []web.ActionSpecRequest{
			{StageIndex: 0, HandlerKind: "transfer", Parameters: map[string]string{"amount": "5"}},
			{StageIndex: 1, HandlerKind: "email"},
		},
	})

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.NotEmpty(t, workflow.ID)
	assert.Len(t, workflow.Actions, 2)
	assert.NotEmpty(t, workflow.Actions[0].ID)

	stored, err := store.WorkflowByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.Owner)
}

func TestCreateWorkflow_ValidationFailures(t *testing.T) {
	app, _ := setupTestApp(t)

	tests := []struct {
		name string
		body web.CreateWorkflowRequest
	}{
		{
			name: "missing name",
			body: web.CreateWorkflowRequest{
				Owner:   "user-1",
				Trigger: models.TriggerConfig{Kind: models.TriggerKindWebhook},
				Actions: []web.ActionSpecRequest{{HandlerKind: "email"}},
			},
		},
		{
			name: "no actions",
			body: web.CreateWorkflowRequest{
				Name:    "empty chain",
				Owner:   "user-1",
				Trigger: models.TriggerConfig{Kind: models.TriggerKindWebhook},
			},
		},
		{
			name: "schedule without cron",
			body: web.CreateWorkflowRequest{
				Name:    "nightly",
				Owner:   "user-1",
				Trigger: models.TriggerConfig{Kind: models.TriggerKindSchedule},
				Actions: []web.ActionSpecRequest{{HandlerKind: "email"}},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/workflows", tc.body))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCatchHook_CreatesRun(t *testing.T) {
	app, store := setupTestApp(t)

	workflow := webhookWorkflow("wf-1", nil)
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	payload := map[string]any{
		"user": map[string]any{"email": "a@b.c"},
	}

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/hooks/catch/user-1/wf-1", payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var hookResp web.HookResponse
	require.NoError(t, json.Unmarshal(body, &hookResp))
	assert.Equal(t, "wf-1", hookResp.WorkflowID)
	assert.Equal(t, string(models.RunStatusPending), hookResp.Status)

	run, err := store.RunByID(context.Background(), hookResp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", run.Context["user"].(map[string]any)["email"])

	// Run creation goes through the transactional outbox path
	assert.Equal(t, []string{hookResp.RunID}, store.outboxed)
}

func TestCatchHook_UnknownWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/hooks/catch/user-1/missing", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatchHook_OwnerMismatch(t *testing.T) {
	app, store := setupTestApp(t)

	workflow := webhookWorkflow("wf-1", nil)
	workflow.Owner = "user-1"
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/hooks/catch/someone-else/wf-1", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, store.runs)
}

func TestCatchHook_NotWebhookTriggered(t *testing.T) {
	app, store := setupTestApp(t)

	workflow := webhookWorkflow("wf-cron", nil)
	workflow.Trigger = models.TriggerConfig{Kind: models.TriggerKindSchedule, CronExpr: "0 0 * * *"}
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/hooks/catch/user-1/wf-cron", map[string]any{}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCatchHook_SchemaViolation(t *testing.T) {
	app, store := setupTestApp(t)

	schema := map[string]any{
		"type":     "object",
		"required": []any{"amount"},
		"properties": map[string]any{
			"amount": map[string]any{"type": "string"},
		},
	}
	require.NoError(t, store.SaveWorkflow(context.Background(), webhookWorkflow("wf-1", schema)))

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/hooks/catch/user-1/wf-1", map[string]any{"other": 1}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, store.runs)

	resp, err = app.Test(jsonRequest(t, http.MethodPost, "/hooks/catch/user-1/wf-1", map[string]any{"amount": "10.5"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestCatchHook_InvalidJSON(t *testing.T) {
	app, store := setupTestApp(t)

	require.NoError(t, store.SaveWorkflow(context.Background(), webhookWorkflow("wf-1", nil)))

	req := httptest.NewRequest(http.MethodPost, "/hooks/catch/user-1/wf-1", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	app, store := setupTestApp(t)

	run := &models.Run{ID: "run-1", WorkflowID: "wf-1", Status: models.RunStatusCompleted}
	require.NoError(t, store.CreateRun(context.Background(), run))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
