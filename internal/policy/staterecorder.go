package policy

import (
	"log/slog"
	"slices"

	"github.com/wardenhq/warden/internal/model"
)

// Attribute paths the state recorder maintains.
const (
	PathPolicySituation = "policySituation"
	PathTriggeredRule   = "triggeredPolicyRule"
)

// ComputationResult is the outcome of comparing desired policy state
// against the currently persisted values. Never mutated after
// construction.
type ComputationResult struct {
	OldSituations []string
	NewSituations []string
	OldRecords    []model.TriggeredRuleRecord
	NewRecords    []model.TriggeredRuleRecord

	// SituationsChanged / RecordsChanged indicate whether a persisted
	// update is needed. Comparison is set equality, not sequence
	// equality: rule evaluation order differing between rounds must not
	// produce a delta.
	SituationsChanged bool
	RecordsChanged    bool
}

// Recorder computes the minimal modification deltas needed to keep
// persisted policy-situation and triggered-rule metadata in sync with the
// rules evaluated this round. Stateless.
type Recorder struct{}

// ObjectStateDeltas computes the deltas for the focus object itself.
//
// Returns nil when nothing changed or when the object is being deleted
// (no point recording state on a disappearing object).
func (Recorder) ObjectStateDeltas(obj *model.FocusObject, deleting bool, rulesToRecord []*EvaluatedRule) []model.ItemDelta {
	if deleting || obj == nil {
		return nil
	}

	result := computeState(obj.PolicySituations, obj.TriggeredRules, rulesToRecord)
	return stateDeltas(result, model.ItemDelta{Bucket: model.BucketZero})
}

// AssignmentStateDeltas computes the deltas for one assignment entry.
//
// The target assignment is matched by its persisted identifier, or by
// old/new value identity when it has not been persisted yet. An assignment
// that cannot be found is an expected condition (it may have been removed
// by a concurrent round) and resolves to a no-op, not an error.
//
// Deltas for persisted assignments go to the zero bucket; deltas for
// not-yet-persisted assignments go to the plus bucket so they ride along
// with the add.
func (Recorder) AssignmentStateDeltas(obj *model.FocusObject, deleting bool, assignmentID int64, targetOID string, rulesToRecord []*EvaluatedRule) []model.ItemDelta {
	if deleting || obj == nil {
		return nil
	}

	target := obj.FindAssignment(assignmentID, targetOID)
	if target == nil {
		slog.Debug("assignment not found for policy state recording, skipping",
			"focus_oid", obj.OID,
			"assignment_id", assignmentID,
			"assignment_target", targetOID,
		)
		return nil
	}

	result := computeState(target.PolicySituations, target.TriggeredRules, rulesToRecord)

	template := model.ItemDelta{
		AssignmentID:     target.ID,
		AssignmentTarget: target.TargetOID,
		Bucket:           model.BucketZero,
	}
	if target.ID == 0 {
		template.Bucket = model.BucketPlus
	}
	return stateDeltas(result, template)
}

// computeState unions the desired situations and externalized records from
// the triggered rules and compares them against the persisted values.
func computeState(currentSituations []string, currentRecords []model.TriggeredRuleRecord, rulesToRecord []*EvaluatedRule) ComputationResult {
	newSituations := make([]string, 0, len(rulesToRecord))
	var newRecords []model.TriggeredRuleRecord

	for _, rule := range rulesToRecord {
		if rule.Situation != "" && !slices.Contains(newSituations, rule.Situation) {
			newSituations = append(newSituations, rule.Situation)
		}
		if rule.RecordStrategy == RecordFull {
			rec := rule.Record()
			if !containsRecord(newRecords, rec) {
				newRecords = append(newRecords, rec)
			}
		}
	}

	// Deterministic order for the emitted delta values.
	slices.Sort(newSituations)
	slices.SortFunc(newRecords, compareRecords)

	return ComputationResult{
		OldSituations:     currentSituations,
		NewSituations:     newSituations,
		OldRecords:        currentRecords,
		NewRecords:        newRecords,
		SituationsChanged: !sameStringSet(currentSituations, newSituations),
		RecordsChanged:    !sameRecordSet(currentRecords, newRecords),
	}
}

// stateDeltas renders the needed replace deltas from a computation result.
// template carries the assignment targeting and bucket; path, kind and
// values are filled per changed aspect.
func stateDeltas(result ComputationResult, template model.ItemDelta) []model.ItemDelta {
	var deltas []model.ItemDelta

	if result.SituationsChanged {
		d := template
		d.Path = PathPolicySituation
		d.Kind = model.ModificationReplace
		d.Values = make([]any, len(result.NewSituations))
		for i, s := range result.NewSituations {
			d.Values[i] = s
		}
		deltas = append(deltas, d)
	}

	if result.RecordsChanged {
		d := template
		d.Path = PathTriggeredRule
		d.Kind = model.ModificationReplace
		d.Values = make([]any, len(result.NewRecords))
		for i, rec := range result.NewRecords {
			d.Values[i] = recordValue(rec)
		}
		deltas = append(deltas, d)
	}

	return deltas
}

// recordValue renders a triggered-rule record as a canonical-JSON-safe map.
func recordValue(rec model.TriggeredRuleRecord) map[string]any {
	m := map[string]any{
		"rule_id":   rec.RuleID,
		"situation": rec.Situation,
	}
	if rec.Message != "" {
		m["message"] = rec.Message
	}
	return m
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

func sameRecordSet(a, b []model.TriggeredRuleRecord) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.SortFunc(as, compareRecords)
	slices.SortFunc(bs, compareRecords)
	for i := range as {
		if !model.SameRecord(as[i], bs[i]) {
			return false
		}
	}
	return true
}

func containsRecord(records []model.TriggeredRuleRecord, rec model.TriggeredRuleRecord) bool {
	for _, r := range records {
		if model.SameRecord(r, rec) {
			return true
		}
	}
	return false
}

func compareRecords(a, b model.TriggeredRuleRecord) int {
	if a.RuleID != b.RuleID {
		if a.RuleID < b.RuleID {
			return -1
		}
		return 1
	}
	if a.Situation != b.Situation {
		if a.Situation < b.Situation {
			return -1
		}
		return 1
	}
	if a.Message != b.Message {
		if a.Message < b.Message {
			return -1
		}
		return 1
	}
	return 0
}
