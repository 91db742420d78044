// Package web provides the HTTP surface for managing workflows and catching
// webhook triggers.
package web

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/flowbox/pkg/models"
)

// CreateWorkflowRequest is the request body for registering a workflow.
type CreateWorkflowRequest struct {
	Name    string              `json:"name"    validate:"required,min=3"`
	Owner   string              `json:"owner"   validate:"required"`
	Trigger models.TriggerConfig `json:"trigger" validate:"required"`
	Actions []ActionSpecRequest `json:"actions" validate:"required,min=1,dive"`
}

// ActionSpecRequest is one stage of a workflow being registered.
type ActionSpecRequest struct {
	StageIndex  int               `json:"stage_index"  validate:"gte=0"`
	HandlerKind string            `json:"handler_kind" validate:"required"`
	Parameters  map[string]string `json:"parameters"`
}

// ToModel builds the workflow model, assigning IDs server-side.
func (r CreateWorkflowRequest) ToModel() *models.Workflow {
	workflow := &models.Workflow{
		ID:        uuid.New().String(),
		Name:      r.Name,
		Owner:     r.Owner,
		Trigger:   r.Trigger,
		CreatedAt: time.Now().UTC(),
	}

	workflow.Actions = make([]models.ActionSpec, 0, len(r.Actions))

	for _, action := range r.Actions {
		parameters := action.Parameters
		if parameters == nil {
			parameters = make(map[string]string)
		}

		workflow.Actions = append(workflow.Actions, models.ActionSpec{
			ID:          uuid.New().String(),
			StageIndex:  action.StageIndex,
			HandlerKind: action.HandlerKind,
			Parameters:  parameters,
		})
	}

	return workflow
}

// HookResponse acknowledges an accepted webhook trigger.
type HookResponse struct {
	RunID      string `json:"run_id"`
	WorkflowID string `json:"workflow_id"`
	Status     string `json:"status"`
}
