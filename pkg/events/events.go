// Package events defines the messages carried by the broker between the
// outbox relay and the stage execution workers.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single stream all stage-advance messages travel on. Messages
// are partitioned by run ID, so stages of one run are strictly ordered while
// unrelated runs progress independently.
const Topic = "flowbox.runs"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	StageAdvanceEvent EventType = "run.stage.advance"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// StageAdvance tells a worker to execute one stage of one run. The relay
// always publishes it with StageIndex 0; workers publish the follow-up with
// the previous index plus one.
type StageAdvance struct {
	BaseEvent

	RunID      string `json:"run_id"`
	StageIndex int    `json:"stage_index"`
}

func (s StageAdvance) GetType() EventType {
	return StageAdvanceEvent
}

func NewStageAdvance(runID string, stageIndex int) StageAdvance {
	return StageAdvance{
		BaseEvent:  NewBaseEvent(StageAdvanceEvent),
		RunID:      runID,
		StageIndex: stageIndex,
	}
}
