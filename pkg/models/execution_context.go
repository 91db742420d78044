package models

// ExecutionContext carries everything an action handler needs for one stage:
// the identity of the run, the stage being executed and the run's frozen
// trigger context.
type ExecutionContext struct {
	RunID       string         `json:"run_id"`
	WorkflowID  string         `json:"workflow_id"`
	StageIndex  int            `json:"stage_index"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}
