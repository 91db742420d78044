package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/flowbox/pkg/clients/ledger"
	"github.com/dukex/flowbox/pkg/events"
	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
	"github.com/dukex/flowbox/pkg/protocol"
	"github.com/dukex/flowbox/pkg/registry"
	"github.com/dukex/flowbox/pkg/worker"
)

type memoryPersistence struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	runs      map[string]*models.Run
	statuses  map[string][]models.RunStatus
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{
		workflows: make(map[string]*models.Workflow),
		runs:      make(map[string]*models.Run),
		statuses:  make(map[string][]models.RunStatus),
	}
}

func (m *memoryPersistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	workflows := make([]*models.Workflow, 0, len(m.workflows))
	for _, workflow := range m.workflows {
		workflows = append(workflows, workflow)
	}

	return workflows, nil
}

func (m *memoryPersistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	workflow, ok := m.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return workflow, nil
}

func (m *memoryPersistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workflows[workflow.ID] = workflow

	return nil
}

func (m *memoryPersistence) CreateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[run.ID] = run

	return nil
}

func (m *memoryPersistence) RunByID(_ context.Context, id string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, persistence.ErrRunNotFound
	}

	return run, nil
}

func (m *memoryPersistence) UpdateRunStatus(_ context.Context, id string, status models.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return persistence.ErrRunNotFound
	}

	run.Status = status
	m.statuses[id] = append(m.statuses[id], status)

	return nil
}

func (m *memoryPersistence) UnprocessedOutbox(_ context.Context, _ int) ([]*models.OutboxRecord, error) {
	return nil, nil
}

func (m *memoryPersistence) MarkOutboxProcessed(_ context.Context, _ []string) error {
	return nil
}

func (m *memoryPersistence) HealthCheck(_ context.Context) error { return nil }

func (m *memoryPersistence) Close(_ context.Context) error { return nil }

func (m *memoryPersistence) statusHistory(id string) []models.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]models.RunStatus(nil), m.statuses[id]...)
}

type recordedExecution struct {
	stageIndex int
	parameters map[string]string
}

type recordingAction struct {
	factory    *recordingFactory
	parameters map[string]string
}

func (a *recordingAction) Execute(_ context.Context, executionCtx models.ExecutionContext, _ *slog.Logger) (any, error) {
	a.factory.mu.Lock()
	defer a.factory.mu.Unlock()

	a.factory.executions = append(a.factory.executions, recordedExecution{
		stageIndex: executionCtx.StageIndex,
		parameters: a.parameters,
	})

	if a.factory.err != nil {
		return nil, a.factory.err
	}

	return map[string]any{"ok": true}, nil
}

type recordingFactory struct {
	mu         sync.Mutex
	kind       string
	err        error
	executions []recordedExecution
}

func (f *recordingFactory) Create(config map[string]string) (protocol.Action, error) {
	return &recordingAction{factory: f, parameters: config}, nil
}

func (f *recordingFactory) ID() string { return f.kind }

func (f *recordingFactory) recorded() []recordedExecution {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]recordedExecution(nil), f.executions...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRegistry(t *testing.T, factories ...protocol.ActionFactory) *registry.Registry {
	t.Helper()

	r := registry.NewRegistry(testLogger())
	for _, factory := range factories {
		r.RegisterAction(factory)
	}

	return r
}

func twoStageWorkflow(kind string) *models.Workflow {
	return &models.Workflow{
		ID:      "wf-1",
		Name:    "two stages",
		Trigger: models.TriggerConfig{Kind: models.TriggerKindWebhook},
		Actions: []models.ActionSpec{
			{ID: "a-0", StageIndex: 0, HandlerKind: kind, Parameters: map[string]string{"stage": "first"}},
			{ID: "a-1", StageIndex: 1, HandlerKind: kind, Parameters: map[string]string{"stage": "second"}},
		},
	}
}

func seedRun(t *testing.T, store *memoryPersistence, workflow *models.Workflow) *models.Run {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	run := &models.Run{
		ID:         "run-1",
		WorkflowID: workflow.ID,
		Context:    map[string]any{"user": map[string]any{"email": "a@b.c"}},
		Status:     models.RunStatusPending,
	}
	require.NoError(t, store.CreateRun(ctx, run))

	return run
}

func TestExecuteStage_AdvancesUntilLastStage(t *testing.T) {
	factory := &recordingFactory{kind: "record"}
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("record"))

	executor := worker.NewExecutor(store, testRegistry(t, factory))
	ctx := context.Background()

	followUps, err := executor.ExecuteStage(ctx, testLogger(), run.ID, 0)
	require.NoError(t, err)
	require.Len(t, followUps, 1)

	next, ok := followUps[0].(events.StageAdvance)
	require.True(t, ok)
	assert.Equal(t, run.ID, next.RunID)
	assert.Equal(t, 1, next.StageIndex)

	followUps, err = executor.ExecuteStage(ctx, testLogger(), run.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, followUps)

	executions := factory.recorded()
	require.Len(t, executions, 2)
	assert.Equal(t, 0, executions[0].stageIndex)
	assert.Equal(t, "first", executions[0].parameters["stage"])
	assert.Equal(t, 1, executions[1].stageIndex)

	assert.Equal(t,
		[]models.RunStatus{models.RunStatusRunning, models.RunStatusCompleted},
		store.statusHistory(run.ID))
}

func TestExecuteStage_OutOfRangeIsDropped(t *testing.T) {
	factory := &recordingFactory{kind: "record"}
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("record"))

	executor := worker.NewExecutor(store, testRegistry(t, factory))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), run.ID, 2)
	require.NoError(t, err)
	assert.Empty(t, followUps)
	assert.Empty(t, factory.recorded())
}

func TestExecuteStage_RunNotFoundIsDropped(t *testing.T) {
	store := newMemoryPersistence()
	executor := worker.NewExecutor(store, testRegistry(t))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, followUps)
}

func TestExecuteStage_WorkflowNotFoundIsDropped(t *testing.T) {
	store := newMemoryPersistence()
	require.NoError(t, store.CreateRun(context.Background(), &models.Run{
		ID:         "run-1",
		WorkflowID: "gone",
	}))

	executor := worker.NewExecutor(store, testRegistry(t))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), "run-1", 0)
	require.NoError(t, err)
	assert.Empty(t, followUps)
}

func TestExecuteStage_UnregisteredHandlerSkipsAndAdvances(t *testing.T) {
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("unknown-kind"))

	executor := worker.NewExecutor(store, testRegistry(t))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), run.ID, 0)
	require.NoError(t, err)
	require.Len(t, followUps, 1)

	next, ok := followUps[0].(events.StageAdvance)
	require.True(t, ok)
	assert.Equal(t, 1, next.StageIndex)
}

func TestExecuteStage_MissingStageIsDropped(t *testing.T) {
	factory := &recordingFactory{kind: "record"}
	store := newMemoryPersistence()

	workflow := &models.Workflow{
		ID:      "wf-holes",
		Name:    "sparse stages",
		Trigger: models.TriggerConfig{Kind: models.TriggerKindWebhook},
		Actions: []models.ActionSpec{
			{ID: "a-0", StageIndex: 0, HandlerKind: "record", Parameters: map[string]string{}},
			{ID: "a-2", StageIndex: 2, HandlerKind: "record", Parameters: map[string]string{}},
		},
	}
	run := seedRun(t, store, workflow)

	executor := worker.NewExecutor(store, testRegistry(t, factory))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), run.ID, 1)
	require.NoError(t, err)
	assert.Empty(t, followUps)
	assert.Empty(t, factory.recorded())
}

type brokenFactory struct {
	kind string
}

func (f *brokenFactory) Create(_ map[string]string) (protocol.Action, error) {
	return nil, errors.New("missing required parameter")
}

func (f *brokenFactory) ID() string { return f.kind }

func TestExecuteStage_InvalidSpecSkipsAndAdvances(t *testing.T) {
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("broken"))

	executor := worker.NewExecutor(store, testRegistry(t, &brokenFactory{kind: "broken"}))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), run.ID, 0)
	require.NoError(t, err)
	require.Len(t, followUps, 1)
}

func TestExecuteStage_PermanentActionErrorMarksRunFailed(t *testing.T) {
	factory := &recordingFactory{kind: "record", err: errors.New("transfer rejected")}
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("record"))

	executor := worker.NewExecutor(store, testRegistry(t, factory))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), run.ID, 0)
	require.Error(t, err)
	assert.Empty(t, followUps)

	assert.Equal(t,
		[]models.RunStatus{models.RunStatusRunning, models.RunStatusFailed},
		store.statusHistory(run.ID))
}

func TestExecuteStage_TransientActionErrorLeavesStatus(t *testing.T) {
	factory := &recordingFactory{
		kind: "record",
		err:  &ledger.TransientError{Err: errors.New("blockheight exceeded")},
	}
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("record"))

	executor := worker.NewExecutor(store, testRegistry(t, factory))

	followUps, err := executor.ExecuteStage(context.Background(), testLogger(), run.ID, 0)
	require.Error(t, err)
	assert.Empty(t, followUps)

	// Redelivery handles transient failures; the run stays running.
	assert.Equal(t,
		[]models.RunStatus{models.RunStatusRunning},
		store.statusHistory(run.ID))
}

func TestExecuteStage_RedeliveryProducesSameFollowUp(t *testing.T) {
	factory := &recordingFactory{kind: "record"}
	store := newMemoryPersistence()
	run := seedRun(t, store, twoStageWorkflow("record"))

	executor := worker.NewExecutor(store, testRegistry(t, factory))
	ctx := context.Background()

	for range 2 {
		followUps, err := executor.ExecuteStage(ctx, testLogger(), run.ID, 0)
		require.NoError(t, err)
		require.Len(t, followUps, 1)

		next, ok := followUps[0].(events.StageAdvance)
		require.True(t, ok)
		assert.Equal(t, 1, next.StageIndex)
	}

	assert.Len(t, factory.recorded(), 2)
}
