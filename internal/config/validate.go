package config

import (
	"fmt"

	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/reaction"
)

// Validation error codes (E200-E299)
const (
	// Rule errors (E201-E209)
	ErrRuleSituationEmpty = "E201" // situation is required
	ErrRuleThresholdMax   = "E202" // threshold max must be positive
	ErrRuleRecordStrategy = "E203" // unknown record strategy
	ErrRuleDuplicateID    = "E204" // duplicate rule ID
	ErrRuleEnforcedInert  = "E205" // enforced rule without condition or threshold

	// Sync policy errors (E210-E219)
	ErrReactionNoSituation = "E210" // reaction lists no situation
	ErrReactionSituation   = "E211" // unknown situation value
	ErrPolicyDuplicateName = "E212" // duplicate policy name
)

var knownSituations = map[reaction.Situation]bool{
	reaction.SituationLinked:    true,
	reaction.SituationUnlinked:  true,
	reaction.SituationDeleted:   true,
	reaction.SituationUnmatched: true,
	reaction.SituationDisputed:  true,
}

// ValidationError is one schema violation in the compiled configuration.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled configuration against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateRules(cfg.Rules)...)
	errs = append(errs, validateSyncPolicies(cfg.SyncPolicies)...)
	return errs
}

func validateRules(rules []policy.Rule) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(rules))

	for _, r := range rules {
		field := fmt.Sprintf("rules.%s", r.ID)

		if seen[r.ID] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate rule ID %q", r.ID),
				Code:    ErrRuleDuplicateID,
			})
		}
		seen[r.ID] = true

		if r.Situation == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".situation",
				Message: "situation is required",
				Code:    ErrRuleSituationEmpty,
			})
		}

		if r.Threshold != nil && r.Threshold.Max <= 0 {
			errs = append(errs, ValidationError{
				Field:   field + ".threshold.max",
				Message: fmt.Sprintf("threshold max must be positive, got %d", r.Threshold.Max),
				Code:    ErrRuleThresholdMax,
			})
		}

		switch r.RecordStrategy {
		case "", policy.RecordSituationOnly, policy.RecordFull:
		default:
			errs = append(errs, ValidationError{
				Field:   field + ".record",
				Message: fmt.Sprintf("unknown record strategy %q, must be %q or %q", r.RecordStrategy, policy.RecordSituationOnly, policy.RecordFull),
				Code:    ErrRuleRecordStrategy,
			})
		}

		// An enforced rule with neither condition nor threshold rejects
		// every change unconditionally; that is always a misconfiguration.
		if r.Enforced && r.Condition == "" && r.Threshold == nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "enforced rule needs a condition or a threshold",
				Code:    ErrRuleEnforcedInert,
			})
		}
	}

	return errs
}

func validateSyncPolicies(policies []reaction.ObjectSyncPolicy) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(policies))

	for _, p := range policies {
		field := fmt.Sprintf("syncPolicies.%s", p.Name)

		if seen[p.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate policy name %q", p.Name),
				Code:    ErrPolicyDuplicateName,
			})
		}
		seen[p.Name] = true

		for i, r := range p.Reactions {
			rfield := fmt.Sprintf("%s.reactions[%d]", field, i)

			if len(r.Situations) == 0 {
				errs = append(errs, ValidationError{
					Field:   rfield + ".situations",
					Message: "reaction must list at least one situation",
					Code:    ErrReactionNoSituation,
				})
			}
			for _, s := range r.Situations {
				if !knownSituations[s] {
					errs = append(errs, ValidationError{
						Field:   rfield + ".situations",
						Message: fmt.Sprintf("unknown situation %q", s),
						Code:    ErrReactionSituation,
					})
				}
			}
		}
	}

	return errs
}
