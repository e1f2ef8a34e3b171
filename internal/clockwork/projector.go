package clockwork

import (
	"context"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/reaction"
)

// RuleProjector is the in-repo projector: it folds the primary delta
// into the focus after-state and evaluates the configured policy rules
// against it. Attribute-mapping and correlation projectors replace it in
// deployments with connected resources; the engine only sees the
// Projector contract either way.
type RuleProjector struct {
	rules     []policy.Rule
	evaluator reaction.ConditionEvaluator
}

// NewRuleProjector creates a projector over the given rules. Rule
// conditions are evaluated in declaration order with the evaluator;
// a rule without a condition always triggers.
func NewRuleProjector(rules []policy.Rule, evaluator reaction.ConditionEvaluator) *RuleProjector {
	return &RuleProjector{rules: rules, evaluator: evaluator}
}

func (p *RuleProjector) Project(ctx context.Context, lens *LensContext, task *Task) error {
	return p.compute(lens)
}

// Resume recomputes the wave from scratch. The rule projector keeps no
// partial state, so resuming and projecting are the same computation.
func (p *RuleProjector) Resume(ctx context.Context, lens *LensContext, task *Task) error {
	return p.compute(lens)
}

func (p *RuleProjector) compute(lens *LensContext) error {
	f := lens.Focus
	if f == nil {
		lens.ProjectionWave = lens.ExecutionWave
		return nil
	}

	if f.ObjectNew == nil {
		if f.ObjectOld != nil {
			f.ObjectNew = cloneFocus(f.ObjectOld)
		} else {
			f.ObjectNew = &model.FocusObject{}
		}
	}

	if d := f.PrimaryDelta; d != nil {
		if d.IsDelete() {
			f.Deleting = true
		} else {
			applyDelta(f.ObjectNew, d)
			if f.ObjectNew.OID == "" {
				f.ObjectNew.OID = d.OID
			}
			if f.ObjectNew.Type == "" {
				f.ObjectNew.Type = d.ObjectType
			}
		}
	}

	evaluated, err := p.evaluateRules(lens, f.ObjectNew)
	if err != nil {
		return err
	}
	f.EvaluatedRules = evaluated

	lens.ProjectionWave = lens.ExecutionWave
	return nil
}

// evaluateRules evaluates every configured rule condition against the
// computed focus state, in declaration order.
func (p *RuleProjector) evaluateRules(lens *LensContext, obj *model.FocusObject) ([]*policy.EvaluatedRule, error) {
	if len(p.rules) == 0 {
		return nil, nil
	}

	attrs := map[string]any(obj.Attrs)
	if attrs == nil {
		attrs = map[string]any{}
	}
	scope := map[string]any{
		"channel": lens.Channel,
		"focus": map[string]any{
			"name":  obj.Name,
			"type":  obj.Type,
			"attrs": attrs,
		},
	}

	evaluated := make([]*policy.EvaluatedRule, 0, len(p.rules))
	for _, r := range p.rules {
		triggered := true
		if r.Condition != "" {
			if p.evaluator == nil {
				return nil, model.NewError(model.KindConfiguration,
					"rule %s has a condition but no evaluator is configured", r.ID)
			}
			holds, err := p.evaluator.Evaluate(r.Condition, scope)
			if err != nil {
				return nil, model.WrapError(model.KindExpression, err, "evaluate condition of rule %s", r.ID)
			}
			triggered = holds
		}

		er := &policy.EvaluatedRule{Rule: r, Triggered: triggered}
		if count, ok := lens.RuleCounters[r.ID]; ok {
			er.Count = count
		}
		evaluated = append(evaluated, er)
	}
	return evaluated, nil
}
