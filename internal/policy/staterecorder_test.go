package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/model"
)

func recordedRule(id, situation string, strategy RecordStrategy) *EvaluatedRule {
	return &EvaluatedRule{
		Rule:      Rule{ID: id, Situation: situation, RecordStrategy: strategy},
		Triggered: true,
	}
}

func TestObjectStateDeltas_EmitsSituationDelta(t *testing.T) {
	obj := &model.FocusObject{OID: "oid-1"}
	rules := []*EvaluatedRule{recordedRule("r1", "#exclusion", RecordSituationOnly)}

	deltas := Recorder{}.ObjectStateDeltas(obj, false, rules)

	require.Len(t, deltas, 1)
	assert.Equal(t, PathPolicySituation, deltas[0].Path)
	assert.Equal(t, model.ModificationReplace, deltas[0].Kind)
	assert.Equal(t, []any{"#exclusion"}, deltas[0].Values)
	assert.Equal(t, model.BucketZero, deltas[0].Bucket)
}

func TestObjectStateDeltas_MinimalWhenSetsEqual(t *testing.T) {
	// Persisted state already matches the computed set; order differs on
	// purpose. No delta may be emitted.
	obj := &model.FocusObject{
		OID:              "oid-1",
		PolicySituations: []string{"#b", "#a"},
	}
	rules := []*EvaluatedRule{
		recordedRule("r1", "#a", RecordSituationOnly),
		recordedRule("r2", "#b", RecordSituationOnly),
	}

	deltas := Recorder{}.ObjectStateDeltas(obj, false, rules)
	assert.Empty(t, deltas, "set equality must suppress the delta")
}

func TestObjectStateDeltas_FullStrategyExternalizesRecords(t *testing.T) {
	obj := &model.FocusObject{OID: "oid-1"}
	rule := recordedRule("r1", "#exceeded", RecordFull)
	rule.Message = "too many grants"

	deltas := Recorder{}.ObjectStateDeltas(obj, false, []*EvaluatedRule{rule})

	require.Len(t, deltas, 2)
	byPath := map[string]model.ItemDelta{}
	for _, d := range deltas {
		byPath[d.Path] = d
	}

	require.Contains(t, byPath, PathTriggeredRule)
	rec := byPath[PathTriggeredRule].Values[0].(map[string]any)
	assert.Equal(t, "r1", rec["rule_id"])
	assert.Equal(t, "too many grants", rec["message"])
}

func TestObjectStateDeltas_ClearsStaleState(t *testing.T) {
	// Previously recorded situation no longer holds: an empty replace
	// must be emitted.
	obj := &model.FocusObject{
		OID:              "oid-1",
		PolicySituations: []string{"#stale"},
	}

	deltas := Recorder{}.ObjectStateDeltas(obj, false, nil)
	require.Len(t, deltas, 1)
	assert.Equal(t, PathPolicySituation, deltas[0].Path)
	assert.Empty(t, deltas[0].Values)
}

func TestObjectStateDeltas_DeletionShortCircuits(t *testing.T) {
	obj := &model.FocusObject{OID: "oid-1"}
	rules := []*EvaluatedRule{recordedRule("r1", "#x", RecordSituationOnly)}

	assert.Nil(t, Recorder{}.ObjectStateDeltas(obj, true, rules))
}

func TestAssignmentStateDeltas_MatchByID(t *testing.T) {
	obj := &model.FocusObject{
		OID: "oid-1",
		Assignments: []model.Assignment{
			{ID: 42, TargetOID: "role-a"},
		},
	}
	rules := []*EvaluatedRule{recordedRule("r1", "#x", RecordSituationOnly)}

	deltas := Recorder{}.AssignmentStateDeltas(obj, false, 42, "", rules)

	require.Len(t, deltas, 1)
	assert.Equal(t, int64(42), deltas[0].AssignmentID)
	assert.Equal(t, model.BucketZero, deltas[0].Bucket)
}

func TestAssignmentStateDeltas_MatchByValueGoesToPlusBucket(t *testing.T) {
	// New assignment not yet persisted: no ID, matched by target value,
	// delta rides the plus bucket.
	obj := &model.FocusObject{
		OID: "oid-1",
		Assignments: []model.Assignment{
			{TargetOID: "role-new"},
		},
	}
	rules := []*EvaluatedRule{recordedRule("r1", "#x", RecordSituationOnly)}

	deltas := Recorder{}.AssignmentStateDeltas(obj, false, 0, "role-new", rules)

	require.Len(t, deltas, 1)
	assert.Equal(t, model.BucketPlus, deltas[0].Bucket)
	assert.Equal(t, "role-new", deltas[0].AssignmentTarget)
}

func TestAssignmentStateDeltas_MissingAssignmentIsNoOp(t *testing.T) {
	obj := &model.FocusObject{OID: "oid-1"}
	rules := []*EvaluatedRule{recordedRule("r1", "#x", RecordSituationOnly)}

	assert.Nil(t, Recorder{}.AssignmentStateDeltas(obj, false, 99, "", rules))
}

func TestRulesToRecord(t *testing.T) {
	rules := []*EvaluatedRule{
		recordedRule("r1", "#a", RecordSituationOnly),
		{Rule: Rule{ID: "r2", Situation: "#b", RecordStrategy: RecordFull}, Triggered: false},
		{Rule: Rule{ID: "r3", Situation: "#c"}, Triggered: true}, // no record action
	}

	filtered := RulesToRecord(rules)
	require.Len(t, filtered, 1)
	assert.Equal(t, "r1", filtered[0].ID)
}
