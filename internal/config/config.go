// Package config compiles CUE policy definitions into the rule and
// synchronization structures the engine consumes.
//
// A policy directory holds .cue files declaring two top-level structs:
//
//	rules: {
//		"r-exclusion": {
//			name:      "SoD exclusion"
//			situation: "exclusion"
//			enforced:  true
//			threshold: max: 5
//			record:    "situationOnly"
//			condition: "focus.attrs.department == \"eng\""
//		}
//	}
//
//	syncPolicies: {
//		"default-account": {
//			kind: "account"
//			reactions: [
//				{name: "link", situations: ["unlinked"]},
//			]
//		}
//	}
//
// Files in one directory are unified into a single CUE value before
// compilation, so definitions may be split across files. All compile and
// validation failures surface as configuration errors.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/reaction"
)

// Config is the compiled policy configuration.
type Config struct {
	Rules        []policy.Rule
	SyncPolicies []reaction.ObjectSyncPolicy
}

// LoadDir reads every .cue file in dir, unifies them and compiles the
// result. File order is lexical, so unification is deterministic.
func LoadDir(dir string) (*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "read policy directory %s", dir)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cue") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, model.NewError(model.KindConfiguration, "no .cue files in policy directory %s", dir)
	}

	cctx := cuecontext.New()
	var unified cue.Value
	for i, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, model.WrapError(model.KindConfiguration, err, "read policy file %s", path)
		}
		v := cctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, model.WrapError(model.KindConfiguration, err, "compile policy file %s", path)
		}
		if i == 0 {
			unified = v
		} else {
			unified = unified.Unify(v)
		}
	}
	if err := unified.Validate(); err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "unify policy files in %s", dir)
	}

	return Compile(unified)
}

// LoadString compiles a single CUE source string. Used by tests and the
// validate command's stdin mode.
func LoadString(src string) (*Config, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return nil, model.WrapError(model.KindConfiguration, err, "compile policy source")
	}
	return Compile(v)
}

// Compile extracts rules and synchronization policies from a CUE value
// and validates them. Declaration order is preserved for both: rule
// evaluation and reaction resolution are order-sensitive.
func Compile(v cue.Value) (*Config, error) {
	cfg := &Config{}

	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if rulesVal.Exists() {
		rules, err := compileRules(rulesVal)
		if err != nil {
			return nil, err
		}
		cfg.Rules = rules
	}

	policiesVal := v.LookupPath(cue.ParsePath("syncPolicies"))
	if policiesVal.Exists() {
		policies, err := compileSyncPolicies(policiesVal)
		if err != nil {
			return nil, err
		}
		cfg.SyncPolicies = policies
	}

	if errs := Validate(cfg); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, ve := range errs {
			msgs[i] = ve.Error()
		}
		return nil, model.NewError(model.KindConfiguration, "invalid policy configuration:\n%s", strings.Join(msgs, "\n"))
	}
	return cfg, nil
}

func lookupString(v cue.Value, path string) (string, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", false, nil
	}
	s, err := f.String()
	if err != nil {
		return "", true, fmt.Errorf("%s must be a string: %w", path, err)
	}
	return s, true, nil
}

func lookupBool(v cue.Value, path string) (bool, bool, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return false, false, nil
	}
	b, err := f.Bool()
	if err != nil {
		return false, true, fmt.Errorf("%s must be a bool: %w", path, err)
	}
	return b, true, nil
}
