package policy

import (
	"context"
	"log/slog"
)

// CounterStore is the external counter-increment capability. The single
// call increments every listed rule counter atomically and returns the
// resulting counts.
//
// Implemented by store.Store (production) and fake counter stores (tests).
// A nil CounterStore means the capability is unavailable (preview runs);
// the tracker is a no-op in that case.
type CounterStore interface {
	IncrementCounters(ctx context.Context, group string, ruleIDs []string) (map[string]int, error)
}

// ThresholdTracker decides which rule counters need an increment for the
// current round and keeps recomputed rules consistent with counts already
// obtained earlier in the same run.
type ThresholdTracker struct {
	support CounterStore
}

// NewThresholdTracker creates a tracker delegating increments to support.
// support may be nil (no counter capability).
func NewThresholdTracker(support CounterStore) *ThresholdTracker {
	return &ThresholdTracker{support: support}
}

// UpdateCounters brings the Count field of every thresholded rule in line
// with the run's counter state.
//
// cache is the per-run map of rule ID to last-known incremented count,
// owned by the lens context and valid for one run only. Rules already in
// the cache had their counter incremented by an earlier round of this run:
// their Count is overwritten from the cache and they are NOT incremented
// again. Triggered thresholded rules missing from the cache are collected
// and incremented in one batch call.
//
// No-op when the counter capability is unavailable or no rule qualifies.
func (t *ThresholdTracker) UpdateCounters(ctx context.Context, cache map[string]int, group string, rules []*EvaluatedRule) error {
	var toIncrement []*EvaluatedRule
	var ids []string

	for _, rule := range rules {
		if !rule.HasThreshold() {
			continue
		}
		if count, seen := cache[rule.ID]; seen {
			// Incremented earlier in this run; the rule object was
			// recomputed since, so restore the count.
			rule.Count = count
			continue
		}
		if !rule.Triggered {
			continue
		}
		toIncrement = append(toIncrement, rule)
		ids = append(ids, rule.ID)
	}

	if len(toIncrement) == 0 || t.support == nil {
		return nil
	}

	// One external call per batch, not one per rule.
	counts, err := t.support.IncrementCounters(ctx, group, ids)
	if err != nil {
		return err
	}

	for _, rule := range toIncrement {
		count, ok := counts[rule.ID]
		if !ok {
			// Counter store did not return this rule; leave the zero
			// count rather than inventing one.
			slog.Warn("counter store returned no count for rule",
				"rule_id", rule.ID,
				"group", group,
			)
			continue
		}
		rule.Count = count
		cache[rule.ID] = count
	}

	slog.Debug("rule counters incremented",
		"group", group,
		"rule_count", len(toIncrement),
	)

	return nil
}
