package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/wardenhq/warden/internal/model"
)

// traceSnapshot converts a result's trace to the canonical-JSON map
// shape stored in golden files.
func traceSnapshot(scenarioName string, result *Result) map[string]any {
	traceList := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		payload := map[string]any{}
		for k, v := range ev.Payload {
			payload[k] = v
		}
		traceList[i] = map[string]any{
			"request_id": ev.RequestID,
			"stage":      ev.Stage,
			"wave":       ev.Wave,
			"seq":        ev.Seq,
			"payload":    payload,
		}
	}
	return map[string]any{
		"scenario_name": scenarioName,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares its audit trail against
// the golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// The scenario must pass: expect-clause or assertion failures fail the
// test before the golden comparison.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	if !result.Pass {
		for _, msg := range result.Errors {
			t.Errorf("scenario %s: %s", scenario.Name, msg)
		}
		t.FailNow()
	}

	traceJSON, err := model.MarshalCanonical(traceSnapshot(scenario.Name, result))
	if err != nil {
		t.Fatalf("scenario %s: marshal trace: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return result
}
