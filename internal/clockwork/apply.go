package clockwork

import (
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/policy"
)

// applyDelta applies an object delta's item modifications to the focus
// object in place. Policy-state paths are routed to the dedicated
// metadata fields; everything else lands in Attrs.
func applyDelta(obj *model.FocusObject, d *model.ObjectDelta) {
	for _, it := range d.Items {
		applyItem(obj, it)
	}
}

func applyItem(obj *model.FocusObject, it model.ItemDelta) {
	if it.AssignmentID != 0 || it.AssignmentTarget != "" {
		a := obj.FindAssignment(it.AssignmentID, it.AssignmentTarget)
		if a == nil {
			return
		}
		switch it.Path {
		case policy.PathPolicySituation:
			a.PolicySituations = applyStrings(a.PolicySituations, it)
		case policy.PathTriggeredRule:
			a.TriggeredRules = applyRecords(a.TriggeredRules, it)
		}
		return
	}

	switch it.Path {
	case policy.PathPolicySituation:
		obj.PolicySituations = applyStrings(obj.PolicySituations, it)
	case policy.PathTriggeredRule:
		obj.TriggeredRules = applyRecords(obj.TriggeredRules, it)
	default:
		applyAttr(obj, it)
	}
}

func applyAttr(obj *model.FocusObject, it model.ItemDelta) {
	if obj.Attrs == nil {
		obj.Attrs = model.Attributes{}
	}
	switch it.Kind {
	case model.ModificationReplace, model.ModificationAdd:
		if len(it.Values) == 1 {
			obj.Attrs[it.Path] = it.Values[0]
		} else {
			obj.Attrs[it.Path] = append([]any(nil), it.Values...)
		}
	case model.ModificationDelete:
		delete(obj.Attrs, it.Path)
	}
}

func applyStrings(current []string, it model.ItemDelta) []string {
	switch it.Kind {
	case model.ModificationReplace:
		return toStrings(it.Values)
	case model.ModificationAdd:
		return append(current, toStrings(it.Values)...)
	case model.ModificationDelete:
		removed := toStrings(it.Values)
		kept := current[:0:0]
		for _, s := range current {
			drop := false
			for _, r := range removed {
				if s == r {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, s)
			}
		}
		return kept
	}
	return current
}

func applyRecords(current []model.TriggeredRuleRecord, it model.ItemDelta) []model.TriggeredRuleRecord {
	// The state recorder only emits full replacements for triggered-rule
	// records.
	if it.Kind != model.ModificationReplace {
		return current
	}
	records := make([]model.TriggeredRuleRecord, 0, len(it.Values))
	for _, v := range it.Values {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		rec := model.TriggeredRuleRecord{}
		if s, ok := m["rule_id"].(string); ok {
			rec.RuleID = s
		}
		if s, ok := m["situation"].(string); ok {
			rec.Situation = s
		}
		if s, ok := m["message"].(string); ok {
			rec.Message = s
		}
		records = append(records, rec)
	}
	return records
}

func toStrings(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// cloneFocus makes an independent copy of a focus object so projector
// output never aliases the persisted before-state.
func cloneFocus(src *model.FocusObject) *model.FocusObject {
	if src == nil {
		return nil
	}
	dst := *src
	if src.Attrs != nil {
		dst.Attrs = make(model.Attributes, len(src.Attrs))
		for k, v := range src.Attrs {
			dst.Attrs[k] = v
		}
	}
	dst.PolicySituations = append([]string(nil), src.PolicySituations...)
	dst.TriggeredRules = append([]model.TriggeredRuleRecord(nil), src.TriggeredRules...)
	if src.Assignments != nil {
		dst.Assignments = make([]model.Assignment, len(src.Assignments))
		for i, a := range src.Assignments {
			ca := a
			ca.PolicySituations = append([]string(nil), a.PolicySituations...)
			ca.TriggeredRules = append([]model.TriggeredRuleRecord(nil), a.TriggeredRules...)
			dst.Assignments[i] = ca
		}
	}
	return &dst
}
