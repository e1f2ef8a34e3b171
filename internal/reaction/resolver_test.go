package reaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/internal/model"
)

// countingEvaluator wraps a fixed verdict and counts evaluations.
type countingEvaluator struct {
	calls   int
	verdict bool
	err     error
}

func (f *countingEvaluator) Evaluate(string, map[string]any) (bool, error) {
	f.calls++
	return f.verdict, f.err
}

func boolPtr(b bool) *bool { return &b }

func policyWith(reactions ...Reaction) *ObjectSyncPolicy {
	return &ObjectSyncPolicy{
		Name:      "test-policy",
		Kind:      "account",
		Intent:    "default",
		Reactions: reactions,
	}
}

func TestReaction_ChannelSpecificBeatsDefault(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "fallback", Situations: []Situation{SituationLinked}},
		Reaction{Name: "c1-override", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}},
	)

	// On channel c1 the later channel-specific reaction must win.
	ctx := NewContext(policy, SituationLinked, "c1", nil)
	r, err := ctx.Reaction()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "c1-override", r.Name)

	// On channel c2 the default is used.
	ctx = NewContext(policy, SituationLinked, "c2", nil)
	r, err = ctx.Reaction()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "fallback", r.Name)
}

func TestReaction_FirstChannelMatchWins(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "first", Situations: []Situation{SituationUnmatched}, Channels: []string{"c1"}},
		Reaction{Name: "second", Situations: []Situation{SituationUnmatched}, Channels: []string{"c1"}},
	)

	ctx := NewContext(policy, SituationUnmatched, "c1", nil)
	r, err := ctx.Reaction()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "first", r.Name)
}

func TestReaction_SituationMismatchSkipped(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "deleted-only", Situations: []Situation{SituationDeleted}, Channels: []string{"c1"}},
	)

	ctx := NewContext(policy, SituationLinked, "c1", nil)
	r, err := ctx.Reaction()
	require.NoError(t, err)
	assert.Nil(t, r, "no reaction matches the situation")
}

func TestReaction_MemoizedExactlyOnce(t *testing.T) {
	eval := &countingEvaluator{verdict: true}
	policy := policyWith(
		Reaction{Name: "guarded", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}, Condition: "channel == \"c1\""},
	)

	ctx := NewContext(policy, SituationLinked, "c1", eval)

	first, err := ctx.Reaction()
	require.NoError(t, err)
	second, err := ctx.Reaction()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, eval.calls, "condition evaluated once despite two lookups")
}

func TestReaction_MemoizesNilResult(t *testing.T) {
	eval := &countingEvaluator{verdict: false}
	policy := policyWith(
		Reaction{Name: "never", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}, Condition: "false"},
	)

	ctx := NewContext(policy, SituationLinked, "c1", eval)

	r, err := ctx.Reaction()
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = ctx.Reaction()
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Equal(t, 1, eval.calls)
}

func TestReaction_FalseConditionFallsThroughToDefault(t *testing.T) {
	eval := &countingEvaluator{verdict: false}
	policy := policyWith(
		Reaction{Name: "guarded", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}, Condition: "false"},
		Reaction{Name: "fallback", Situations: []Situation{SituationLinked}},
	)

	ctx := NewContext(policy, SituationLinked, "c1", eval)
	r, err := ctx.Reaction()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "fallback", r.Name)
}

func TestReaction_ConditionWithoutEvaluatorIsConfigError(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "guarded", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}, Condition: "true"},
	)

	ctx := NewContext(policy, SituationLinked, "c1", nil)
	_, err := ctx.Reaction()
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestReaction_WildcardChannelIsDefault(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "wildcard", Situations: []Situation{SituationLinked}, Channels: []string{"*"}},
		Reaction{Name: "specific", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}},
	)

	ctx := NewContext(policy, SituationLinked, "c1", nil)
	r, err := ctx.Reaction()
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "specific", r.Name, "wildcard competes only as default")
}

func TestDerived_KindIntentFallBackToPolicy(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "override", Situations: []Situation{SituationLinked}, Channels: []string{"c1"}, Kind: "entitlement"},
	)

	ctx := NewContext(policy, SituationLinked, "c1", nil)
	kind, err := ctx.Kind()
	require.NoError(t, err)
	assert.Equal(t, "entitlement", kind)

	intent, err := ctx.Intent()
	require.NoError(t, err)
	assert.Equal(t, "default", intent, "intent inherited from policy")
}

func TestLimitPropagation_DiscoveryChannelForcesLimiting(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "open", Situations: []Situation{SituationLinked}, LimitPropagation: boolPtr(false)},
	)

	// Discovery + linked: forced limiting even though the reaction says no.
	ctx := NewContext(policy, SituationLinked, ChannelDiscovery, nil)
	limited, err := ctx.LimitPropagation()
	require.NoError(t, err)
	assert.True(t, limited)

	// Discovery + deleted: the forced limiting does NOT apply.
	delPolicy := policyWith(
		Reaction{Name: "open", Situations: []Situation{SituationDeleted}, LimitPropagation: boolPtr(false)},
	)
	ctx = NewContext(delPolicy, SituationDeleted, ChannelDiscovery, nil)
	limited, err = ctx.LimitPropagation()
	require.NoError(t, err)
	assert.False(t, limited)

	// Non-discovery channel: the reaction override applies.
	ctx = NewContext(policy, SituationLinked, "c1", nil)
	limited, err = ctx.LimitPropagation()
	require.NoError(t, err)
	assert.False(t, limited)
}

func TestDoReconciliation_ReactionOverridesPolicy(t *testing.T) {
	policy := policyWith(
		Reaction{Name: "recon", Situations: []Situation{SituationUnlinked}, Channels: []string{"c1"}, DoReconciliation: boolPtr(true)},
	)
	policy.DoReconciliation = false

	ctx := NewContext(policy, SituationUnlinked, "c1", nil)
	recon, err := ctx.DoReconciliation()
	require.NoError(t, err)
	assert.True(t, recon)
}

func TestOwner_LinkedBeatsCorrelated(t *testing.T) {
	linked := &model.FocusObject{OID: "linked"}
	correlated := &model.FocusObject{OID: "correlated"}

	ctx := NewContext(nil, SituationLinked, "c1", nil)
	assert.Nil(t, ctx.Owner())

	ctx.CorrelatedOwner = correlated
	assert.Equal(t, "correlated", ctx.Owner().OID)

	ctx.LinkedOwner = linked
	assert.Equal(t, "linked", ctx.Owner().OID)
}

func TestTag_LazyFromShadow(t *testing.T) {
	ctx := NewContext(nil, SituationLinked, "c1", nil)
	ctx.Shadow = model.Attributes{"tag": "admin-account"}

	assert.Equal(t, "admin-account", ctx.Tag())
	// Mutating the shadow after the first read must not change the tag.
	ctx.Shadow["tag"] = "other"
	assert.Equal(t, "admin-account", ctx.Tag())
}
