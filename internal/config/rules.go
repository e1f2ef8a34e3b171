package config

import (
	"strings"

	"cuelang.org/go/cue"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/policy"
)

// compileRules parses the rules struct. Field labels become rule IDs;
// CUE preserves field declaration order, which becomes the evaluation
// order.
func compileRules(v cue.Value) ([]policy.Rule, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "iterate rules")
	}

	var rules []policy.Rule
	for iter.Next() {
		id := strings.Trim(iter.Selector().String(), `"`)
		rule, err := compileRule(id, iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(id string, v cue.Value) (policy.Rule, error) {
	rule := policy.Rule{ID: id}

	fail := func(err error) (policy.Rule, error) {
		return policy.Rule{}, model.WrapError(model.KindConfiguration, err, "rule %s", id)
	}

	name, _, err := lookupString(v, "name")
	if err != nil {
		return fail(err)
	}
	rule.Name = name

	situation, _, err := lookupString(v, "situation")
	if err != nil {
		return fail(err)
	}
	rule.Situation = situation

	enforced, _, err := lookupBool(v, "enforced")
	if err != nil {
		return fail(err)
	}
	rule.Enforced = enforced

	condition, _, err := lookupString(v, "condition")
	if err != nil {
		return fail(err)
	}
	rule.Condition = condition

	record, ok, err := lookupString(v, "record")
	if err != nil {
		return fail(err)
	}
	if ok {
		rule.RecordStrategy = policy.RecordStrategy(record)
	}

	maxVal := v.LookupPath(cue.ParsePath("threshold.max"))
	if maxVal.Exists() {
		max, err := maxVal.Int64()
		if err != nil {
			return fail(err)
		}
		rule.Threshold = &policy.Threshold{Max: int(max)}
	}

	return rule, nil
}
