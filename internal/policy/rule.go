package policy

import "github.com/wardenhq/warden/internal/model"

// RecordStrategy selects how much of a triggered rule is externalized onto
// the persisted object or assignment.
type RecordStrategy string

const (
	// RecordSituationOnly persists the policy situation tag only.
	RecordSituationOnly RecordStrategy = "situationOnly"
	// RecordFull persists the situation tag plus the full triggered-rule
	// record.
	RecordFull RecordStrategy = "full"
)

// Threshold declares a counter ceiling on a rule. A rule with a threshold
// has its trigger count persisted externally; downstream checks compare
// the count against Max.
type Threshold struct {
	Max int `json:"max"`
}

// Rule is a configured policy rule as compiled from the policy definition
// files.
type Rule struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Situation string     `json:"situation"` // policy situation tag recorded when triggered
	Enforced  bool       `json:"enforced,omitempty"`
	Threshold *Threshold `json:"threshold,omitempty"`

	// RecordStrategy is empty when the rule has no record action.
	RecordStrategy RecordStrategy `json:"record_strategy,omitempty"`

	// Condition is a CUE boolean expression over the focus scope deciding
	// whether the rule triggers. Empty means the projector decides.
	Condition string `json:"condition,omitempty"`
}

// HasThreshold reports whether the rule declares a counter threshold.
func (r *Rule) HasThreshold() bool {
	return r.Threshold != nil
}

// HasRecordAction reports whether the rule has an enabled record action.
func (r *Rule) HasRecordAction() bool {
	return r.RecordStrategy != ""
}

// EvaluatedRule is one rule's evaluation result for the current projector
// round. It is owned by the focus or assignment context that produced it
// and is rebuilt from scratch each round.
type EvaluatedRule struct {
	Rule

	Triggered bool   `json:"triggered"`
	Count     int    `json:"count,omitempty"` // last-known incremented count
	Message   string `json:"message,omitempty"`
}

// OverThreshold reports whether the rule's counter has crossed its
// configured ceiling. Always false for rules without a threshold.
func (e *EvaluatedRule) OverThreshold() bool {
	return e.HasThreshold() && e.Count > e.Threshold.Max
}

// Record renders the externalized triggered-rule record for this
// evaluation.
func (e *EvaluatedRule) Record() model.TriggeredRuleRecord {
	return model.TriggeredRuleRecord{
		RuleID:    e.ID,
		Situation: e.Situation,
		Message:   e.Message,
	}
}

// RulesToRecord filters the triggered rules that carry a record action.
func RulesToRecord(rules []*EvaluatedRule) []*EvaluatedRule {
	var out []*EvaluatedRule
	for _, r := range rules {
		if r.Triggered && r.HasRecordAction() {
			out = append(out, r)
		}
	}
	return out
}
