package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/model"
)

func TestGoldenEngineeringGrant(t *testing.T) {
	RunWithGolden(t, loadTestScenario(t, "engineering_grant"))
}

func TestGoldenFocusDeletion(t *testing.T) {
	RunWithGolden(t, loadTestScenario(t, "focus_deletion"))
}

func TestGoldenPreviewNoSideEffects(t *testing.T) {
	RunWithGolden(t, loadTestScenario(t, "preview_no_side_effects"))
}

func TestTraceSnapshotShape(t *testing.T) {
	result := NewResult()
	result.Trace = append(result.Trace, TraceEvent{
		RequestID: "req-1",
		Stage:     "request",
		Wave:      0,
		Seq:       1,
		Payload:   map[string]any{"channel": "rest", "state": "INITIAL"},
	})

	snapshot := traceSnapshot("shape", result)
	data, err := model.MarshalCanonical(snapshot)
	require.NoError(t, err)

	assert.Equal(t,
		`{"scenario_name":"shape","trace":[{"payload":{"channel":"rest","state":"INITIAL"},"request_id":"req-1","seq":1,"stage":"request","wave":0}]}`,
		string(data))
}

func TestTraceSnapshotDeterministic(t *testing.T) {
	scenario := loadTestScenario(t, "engineering_grant")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	firstJSON, err := model.MarshalCanonical(traceSnapshot(scenario.Name, first))
	require.NoError(t, err)
	secondJSON, err := model.MarshalCanonical(traceSnapshot(scenario.Name, second))
	require.NoError(t, err)

	assert.Equal(t, string(firstJSON), string(secondJSON))
}
