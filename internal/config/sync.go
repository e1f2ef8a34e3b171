package config

import (
	"strings"

	"cuelang.org/go/cue"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/reaction"
)

// compileSyncPolicies parses the syncPolicies struct. Field labels
// become policy names; reaction lists keep their declaration order,
// which is the resolution priority.
func compileSyncPolicies(v cue.Value) ([]reaction.ObjectSyncPolicy, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "iterate syncPolicies")
	}

	var policies []reaction.ObjectSyncPolicy
	for iter.Next() {
		name := strings.Trim(iter.Selector().String(), `"`)
		p, err := compileSyncPolicy(name, iter.Value())
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, nil
}

func compileSyncPolicy(name string, v cue.Value) (reaction.ObjectSyncPolicy, error) {
	p := reaction.ObjectSyncPolicy{Name: name}

	fail := func(err error) (reaction.ObjectSyncPolicy, error) {
		return reaction.ObjectSyncPolicy{}, model.WrapError(model.KindConfiguration, err, "syncPolicy %s", name)
	}

	kind, _, err := lookupString(v, "kind")
	if err != nil {
		return fail(err)
	}
	p.Kind = kind

	intent, _, err := lookupString(v, "intent")
	if err != nil {
		return fail(err)
	}
	p.Intent = intent

	reconcile, _, err := lookupBool(v, "doReconciliation")
	if err != nil {
		return fail(err)
	}
	p.DoReconciliation = reconcile

	limit, _, err := lookupBool(v, "limitPropagation")
	if err != nil {
		return fail(err)
	}
	p.LimitPropagation = limit

	reactionsVal := v.LookupPath(cue.ParsePath("reactions"))
	if reactionsVal.Exists() {
		list, err := reactionsVal.List()
		if err != nil {
			return fail(err)
		}
		for list.Next() {
			r, err := compileReaction(list.Value())
			if err != nil {
				return fail(err)
			}
			p.Reactions = append(p.Reactions, r)
		}
	}

	return p, nil
}

func compileReaction(v cue.Value) (reaction.Reaction, error) {
	var r reaction.Reaction

	name, _, err := lookupString(v, "name")
	if err != nil {
		return r, err
	}
	r.Name = name

	situations, err := stringList(v, "situations")
	if err != nil {
		return r, err
	}
	for _, s := range situations {
		r.Situations = append(r.Situations, reaction.Situation(s))
	}

	r.Channels, err = stringList(v, "channels")
	if err != nil {
		return r, err
	}

	condition, _, err := lookupString(v, "condition")
	if err != nil {
		return r, err
	}
	r.Condition = condition

	kind, _, err := lookupString(v, "kind")
	if err != nil {
		return r, err
	}
	r.Kind = kind

	intent, _, err := lookupString(v, "intent")
	if err != nil {
		return r, err
	}
	r.Intent = intent

	if b, ok, err := lookupBool(v, "doReconciliation"); err != nil {
		return r, err
	} else if ok {
		r.DoReconciliation = &b
	}

	if b, ok, err := lookupBool(v, "limitPropagation"); err != nil {
		return r, err
	} else if ok {
		r.LimitPropagation = &b
	}

	return r, nil
}

func stringList(v cue.Value, path string) ([]string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return nil, nil
	}
	list, err := f.List()
	if err != nil {
		return nil, err
	}
	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
