// Package models defines the domain entities shared across the pipeline.
package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// TriggerKind identifies how runs of a workflow are created.
type TriggerKind string

const (
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindSchedule TriggerKind = "schedule"
)

// TriggerConfig describes the entry point of a workflow. Webhook triggers may
// carry a JSON schema the ingestion payload is validated against; schedule
// triggers carry a cron expression.
type TriggerConfig struct {
	Kind          TriggerKind    `json:"kind"           validate:"required,oneof=webhook schedule"`
	CronExpr      string         `json:"cron,omitempty"`
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`
}

// Workflow is an ordered chain of action specs owned by a user. The execution
// pipeline only ever reads workflows; creating and updating them is the CRUD
// surface's job.
type Workflow struct {
	ID        string        `json:"id"         validate:"required"`
	Name      string        `json:"name"       validate:"required"`
	Owner     string        `json:"owner"`
	Trigger   TriggerConfig `json:"trigger"    validate:"required"`
	Actions   []ActionSpec  `json:"actions"    validate:"dive"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (w *Workflow) Validate(validate *validator.Validate) error {
	return validate.Struct(w)
}

// ActionByStage returns the action spec at the given stage index.
func (w *Workflow) ActionByStage(stageIndex int) (ActionSpec, bool) {
	for _, action := range w.Actions {
		if action.StageIndex == stageIndex {
			return action, true
		}
	}

	return ActionSpec{}, false
}

// LastStageIndex returns the highest stage index in the chain. Stage indexes
// are compared, never counted: the chain is not assumed to be contiguous.
// Returns -1 for a workflow with no actions.
func (w *Workflow) LastStageIndex() int {
	last := -1
	for _, action := range w.Actions {
		if action.StageIndex > last {
			last = action.StageIndex
		}
	}

	return last
}
