package harness

import (
	"context"
	"fmt"
	"slices"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

// evalAssertion validates one assertion against the store and the
// collected trace, recording failures on the result.
func evalAssertion(ctx context.Context, st *store.Store, index int, a *Assertion, result *Result) {
	switch a.Type {
	case AssertFocusState:
		assertFocusState(ctx, st, index, a, result)
	case AssertAuditCount:
		assertAuditCount(index, a, result)
	case AssertAuditOrder:
		assertAuditOrder(index, a, result)
	case AssertCounterValue:
		assertCounterValue(ctx, st, index, a, result)
	default:
		result.AddError("assertions[%d]: unknown type %q", index, a.Type)
	}
}

func assertFocusState(ctx context.Context, st *store.Store, index int, a *Assertion, result *Result) {
	obj, err := st.GetFocus(ctx, a.OID)
	if a.Absent {
		if err == nil {
			result.AddError("assertions[%d]: focus %s exists, expected absent", index, a.OID)
		} else if !model.IsKind(err, model.KindNotFound) {
			result.AddError("assertions[%d]: read focus %s: %v", index, a.OID, err)
		}
		return
	}
	if err != nil {
		result.AddError("assertions[%d]: read focus %s: %v", index, a.OID, err)
		return
	}

	for path, want := range a.Expect {
		got, ok := obj.Attrs[path]
		if !ok {
			result.AddError("assertions[%d]: focus %s has no attribute %s", index, a.OID, path)
			continue
		}
		if !looselyEqual(got, want) {
			result.AddError("assertions[%d]: focus %s attribute %s = %v, expected %v", index, a.OID, path, got, want)
		}
	}

	for _, situation := range a.Situations {
		if !slices.Contains(obj.PolicySituations, situation) {
			result.AddError("assertions[%d]: focus %s missing policy situation %s (has %v)",
				index, a.OID, situation, obj.PolicySituations)
		}
	}
}

func assertAuditCount(index int, a *Assertion, result *Result) {
	count := 0
	for _, ev := range result.Trace {
		if ev.Stage == a.Stage {
			count++
		}
	}
	if count != a.Count {
		result.AddError("assertions[%d]: stage %s audited %d time(s), expected %d", index, a.Stage, count, a.Count)
	}
}

// assertAuditOrder checks that the given stages appear in the trace as a
// subsequence, in order.
func assertAuditOrder(index int, a *Assertion, result *Result) {
	next := 0
	for _, ev := range result.Trace {
		if next < len(a.Stages) && ev.Stage == a.Stages[next] {
			next++
		}
	}
	if next < len(a.Stages) {
		result.AddError("assertions[%d]: stage %s not found in order %v", index, a.Stages[next], a.Stages)
	}
}

func assertCounterValue(ctx context.Context, st *store.Store, index int, a *Assertion, result *Result) {
	value, err := st.CounterValue(ctx, a.Group, a.Rule)
	if err != nil {
		result.AddError("assertions[%d]: read counter %s/%s: %v", index, a.Group, a.Rule, err)
		return
	}
	if value != a.Count {
		result.AddError("assertions[%d]: counter %s/%s = %d, expected %d", index, a.Group, a.Rule, value, a.Count)
	}
}

// looselyEqual compares an attribute value against a YAML-sourced
// expectation. Stored values round-trip through JSON and YAML values
// through the YAML decoder, so numeric types differ; string rendering
// is the comparison that survives both.
func looselyEqual(got, want any) bool {
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}
