package events_test

import (
	"encoding/json"
	"testing"

	"github.com/dukex/flowbox/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageAdvance(t *testing.T) {
	event := events.NewStageAdvance("run-1", 2)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, events.StageAdvanceEvent, event.GetType())
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, 2, event.StageIndex)
	assert.False(t, event.Timestamp.IsZero())
}

func TestStageAdvance_WireFormat(t *testing.T) {
	payload, err := json.Marshal(events.NewStageAdvance("run-9", 0))
	require.NoError(t, err)

	var decoded map[string]any

	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "run-9", decoded["run_id"])
	assert.InDelta(t, 0, decoded["stage_index"], 0)
}
