package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCounterStore counts batch calls and increments in memory.
type fakeCounterStore struct {
	calls  int
	counts map[string]int
	err    error
}

func newFakeCounterStore() *fakeCounterStore {
	return &fakeCounterStore{counts: make(map[string]int)}
}

func (f *fakeCounterStore) IncrementCounters(_ context.Context, _ string, ruleIDs []string) (map[string]int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]int, len(ruleIDs))
	for _, id := range ruleIDs {
		f.counts[id]++
		out[id] = f.counts[id]
	}
	return out, nil
}

func thresholdRule(id string, triggered bool) *EvaluatedRule {
	return &EvaluatedRule{
		Rule:      Rule{ID: id, Situation: "#exceeded", Threshold: &Threshold{Max: 3}},
		Triggered: triggered,
	}
}

func TestUpdateCounters_IncrementsTriggeredThresholdedRules(t *testing.T) {
	support := newFakeCounterStore()
	tracker := NewThresholdTracker(support)
	cache := make(map[string]int)

	rules := []*EvaluatedRule{
		thresholdRule("r1", true),
		thresholdRule("r2", false),                                   // not triggered: skipped
		{Rule: Rule{ID: "r3", Situation: "#x"}, Triggered: true},     // no threshold: skipped
	}

	require.NoError(t, tracker.UpdateCounters(context.Background(), cache, "task-1", rules))

	assert.Equal(t, 1, support.calls, "one batch call for the whole round")
	assert.Equal(t, 1, rules[0].Count)
	assert.Equal(t, 0, rules[1].Count)
	assert.Equal(t, 0, rules[2].Count)
	assert.Equal(t, map[string]int{"r1": 1}, cache)
}

func TestUpdateCounters_ExactlyOncePerRun(t *testing.T) {
	support := newFakeCounterStore()
	tracker := NewThresholdTracker(support)
	cache := make(map[string]int)

	// The rule stays triggered across 3 consecutive rounds of the same
	// run; the rule object is recomputed from scratch each round.
	for round := 0; round < 3; round++ {
		rules := []*EvaluatedRule{thresholdRule("r1", true)}
		require.NoError(t, tracker.UpdateCounters(context.Background(), cache, "task-1", rules))
		assert.Equal(t, 1, rules[0].Count, "round %d sees the same incremented value", round)
	}

	assert.Equal(t, 1, support.calls, "counter store invoked exactly once for the run")
}

func TestUpdateCounters_CachedCountOverwritesRecomputedRule(t *testing.T) {
	support := newFakeCounterStore()
	tracker := NewThresholdTracker(support)
	cache := map[string]int{"r1": 7}

	// Recomputed rule starts with a stale zero count and is not even
	// triggered this round; the cached count still wins.
	rule := thresholdRule("r1", false)
	require.NoError(t, tracker.UpdateCounters(context.Background(), cache, "task-1", []*EvaluatedRule{rule}))

	assert.Equal(t, 7, rule.Count)
	assert.Equal(t, 0, support.calls)
}

func TestUpdateCounters_NoCapability(t *testing.T) {
	tracker := NewThresholdTracker(nil)
	cache := make(map[string]int)

	rule := thresholdRule("r1", true)
	require.NoError(t, tracker.UpdateCounters(context.Background(), cache, "task-1", []*EvaluatedRule{rule}))

	assert.Equal(t, 0, rule.Count)
	assert.Empty(t, cache)
}

func TestUpdateCounters_StoreErrorPropagates(t *testing.T) {
	support := newFakeCounterStore()
	support.err = errors.New("counter store down")
	tracker := NewThresholdTracker(support)

	err := tracker.UpdateCounters(context.Background(), map[string]int{}, "task-1", []*EvaluatedRule{thresholdRule("r1", true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counter store down")
}

func TestOverThreshold(t *testing.T) {
	rule := thresholdRule("r1", true)
	rule.Count = 3
	assert.False(t, rule.OverThreshold(), "count equal to max is still within threshold")

	rule.Count = 4
	assert.True(t, rule.OverThreshold())

	noThreshold := &EvaluatedRule{Rule: Rule{ID: "r2"}, Count: 100}
	assert.False(t, noThreshold.OverThreshold())
}
