package models

// ActionSpec configures one stage of a workflow: which handler runs and the
// parameter templates resolved against the run context before execution.
// StageIndex is the authoritative ordering field, zero-based and unique
// within a workflow.
type ActionSpec struct {
	ID          string            `json:"id"           validate:"required"`
	StageIndex  int               `json:"stage_index"  validate:"gte=0"`
	HandlerKind string            `json:"handler_kind" validate:"required"`
	Parameters  map[string]string `json:"parameters"`
}
