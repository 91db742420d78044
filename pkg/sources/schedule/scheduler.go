// Package schedule creates runs for schedule-triggered workflows on their
// cron expressions.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/dukex/flowbox/pkg/models"
	"github.com/dukex/flowbox/pkg/persistence"
)

// reloadInterval is how often the scheduler re-reads workflow definitions to
// pick up new or removed schedules.
const reloadInterval = time.Minute

// Scheduler registers one cron job per schedule-triggered workflow. Firing a
// job writes a run through the transactional outbox path; the relay takes it
// from there, exactly like a webhook-created run.
type Scheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	cron        *cron.Cron
	jobs        map[string]cron.EntryID
	exprs       map[string]string
	mutex       sync.Mutex
}

func NewScheduler(logger *slog.Logger, persistence persistence.Persistence) *Scheduler {
	return &Scheduler{
		logger:      logger.With("module", "scheduler"),
		persistence: persistence,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		jobs:  make(map[string]cron.EntryID),
		exprs: make(map[string]string),
	}
}

// Start loads schedules, starts the cron runner and blocks reloading
// definitions until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	err := s.reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "jobs", len(s.jobs))

	ticker := time.NewTicker(reloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx := s.cron.Stop()
			<-stopCtx.Done()

			s.logger.InfoContext(ctx, "Scheduler stopped")

			return ctx.Err()
		case <-ticker.C:
			err := s.reload(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "Failed to reload schedules", "error", err)
			}
		}
	}
}

// reload syncs cron jobs with the current workflow definitions.
func (s *Scheduler) reload(ctx context.Context) error {
	workflows, err := s.persistence.Workflows(ctx)
	if err != nil {
		return err
	}

	scheduled := make(map[string]*models.Workflow)

	for _, workflow := range workflows {
		if workflow.Trigger.Kind == models.TriggerKindSchedule {
			scheduled[workflow.ID] = workflow
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for workflowID, entryID := range s.jobs {
		workflow, stillExists := scheduled[workflowID]
		if stillExists && workflow.Trigger.CronExpr == s.exprs[workflowID] {
			continue
		}

		s.cron.Remove(entryID)
		delete(s.jobs, workflowID)
		delete(s.exprs, workflowID)
	}

	for workflowID, workflow := range scheduled {
		if _, registered := s.jobs[workflowID]; registered {
			continue
		}

		err := s.register(ctx, workflow)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to register schedule",
				"workflow_id", workflowID,
				"cron", workflow.Trigger.CronExpr,
				"error", err)
		}
	}

	return nil
}

func (s *Scheduler) register(ctx context.Context, workflow *models.Workflow) error {
	workflowID := workflow.ID
	cronExpr := workflow.Trigger.CronExpr

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.fire(ctx, workflowID, cronExpr)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobs[workflowID] = entryID
	s.exprs[workflowID] = cronExpr

	s.logger.InfoContext(ctx, "Registered schedule",
		"workflow_id", workflowID,
		"cron", cronExpr)

	return nil
}

func (s *Scheduler) fire(ctx context.Context, workflowID, cronExpr string) {
	now := time.Now().UTC()

	run := &models.Run{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Context: map[string]any{
			"schedule": map[string]any{
				"fired_at": now.Format(time.RFC3339),
				"cron":     cronExpr,
			},
		},
		Status:    models.RunStatusPending,
		CreatedAt: now,
	}

	err := s.persistence.CreateRun(ctx, run)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create scheduled run",
			"workflow_id", workflowID,
			"error", err)

		return
	}

	s.logger.InfoContext(ctx, "Scheduled run created",
		"workflow_id", workflowID,
		"run_id", run.ID)
}
