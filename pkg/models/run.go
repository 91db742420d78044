package models

import "time"

// RunStatus is advisory only: it is recorded for observation surfaces and is
// never consulted by the pipeline's control flow.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution instance of a workflow. Context is the document
// captured at trigger time; it is frozen on creation and every stage reads
// the same snapshot. The pipeline never mutates or deletes runs.
type Run struct {
	ID         string         `json:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id" validate:"required"`
	Context    map[string]any `json:"context"`
	Status     RunStatus      `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
}
