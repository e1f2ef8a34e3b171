package model

// Attributes holds the named attribute values of an object.
//
// Values are constrained to the canonical JSON subset: string, int, int64,
// bool, []any and map[string]any of the same. Floats and nulls are rejected
// at hashing time, not at assignment time.
type Attributes map[string]any

// FocusObject is the primary identity object being processed (a person,
// role, org, ...). The Version column is the optimistic-concurrency token
// the conflict watcher protocol compares against.
type FocusObject struct {
	OID     string     `json:"oid"`
	Type    string     `json:"type"` // "user", "role", "org", "service"
	Name    string     `json:"name"`
	Version int64      `json:"version"`
	Attrs   Attributes `json:"attrs,omitempty"`

	// Persisted policy-state metadata, kept minimal by the state recorder.
	PolicySituations []string              `json:"policy_situations,omitempty"`
	TriggeredRules   []TriggeredRuleRecord `json:"triggered_rules,omitempty"`

	// Multi-valued assignment entries (role/entitlement grants).
	Assignments []Assignment `json:"assignments,omitempty"`
}

// Assignment is one multi-valued assignment entry on a focus object.
//
// ID is the persisted container identifier; zero means the assignment has
// not been persisted yet, in which case the state recorder matches it by
// value identity (TargetOID) instead.
type Assignment struct {
	ID        int64  `json:"id,omitempty"`
	TargetOID string `json:"target_oid"`

	PolicySituations []string              `json:"policy_situations,omitempty"`
	TriggeredRules   []TriggeredRuleRecord `json:"triggered_rules,omitempty"`
}

// TriggeredRuleRecord is the externalized form of a triggered policy rule,
// persisted on the object or assignment when the rule's record action uses
// the full externalization strategy.
type TriggeredRuleRecord struct {
	RuleID    string `json:"rule_id"`
	Situation string `json:"situation"`
	Message   string `json:"message,omitempty"`
}

// SameRecord reports whether two triggered-rule records carry the same
// logical content. Used for set comparison by the state recorder.
func SameRecord(a, b TriggeredRuleRecord) bool {
	return a.RuleID == b.RuleID && a.Situation == b.Situation && a.Message == b.Message
}

// FindAssignment locates an assignment entry on the focus, first by
// persisted identifier, then by target value identity for entries that have
// not been persisted yet. Returns nil when no entry matches.
func (f *FocusObject) FindAssignment(id int64, targetOID string) *Assignment {
	if id != 0 {
		for i := range f.Assignments {
			if f.Assignments[i].ID == id {
				return &f.Assignments[i]
			}
		}
		return nil
	}
	for i := range f.Assignments {
		if f.Assignments[i].TargetOID == targetOID {
			return &f.Assignments[i]
		}
	}
	return nil
}
