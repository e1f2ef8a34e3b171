package clockwork

import (
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/policy"
	"github.com/wardenhq/warden/internal/reaction"
)

// State is the position of a lens in the orchestration state machine.
// Within one run the state is monotonically non-decreasing.
type State string

const (
	StateInitial   State = "INITIAL"
	StatePrimary   State = "PRIMARY"
	StateSecondary State = "SECONDARY"
	StateFinal     State = "FINAL"
)

// FocusContext holds the before/after state of the identity object being
// processed, the requested primary delta and the deltas computed by the
// projector and the policy state recorder.
type FocusContext struct {
	ObjectOld *model.FocusObject
	ObjectNew *model.FocusObject

	PrimaryDelta    *model.ObjectDelta
	SecondaryDeltas []*model.ObjectDelta

	EvaluatedRules []*policy.EvaluatedRule
	Deleting       bool
}

// ProjectionContext is the per-provisioned-account computation state.
// Sync is set when the projection originates from an inbound
// synchronization event; its resolved reaction decides reconciliation
// and propagation-limiting for this projection.
type ProjectionContext struct {
	ResourceOID string
	Tombstone   bool
	Sync        *reaction.Context
	Deltas      []*model.ObjectDelta
}

// LensContext is the mutable in-flight computation state for one change
// request. It is created by the caller, mutated in place by every click,
// and discarded after Run returns (or snapshotted when the run goes
// background).
type LensContext struct {
	State State

	ExecutionWave  int
	ProjectionWave int
	MaxWave        int

	Focus       *FocusContext
	Projections []*ProjectionContext

	Channel   string
	RequestID string
	Preview   bool

	// RuleCounters caches counts incremented earlier in this run, keyed
	// by rule ID. Valid for the lifetime of one run only; this is what
	// makes counter use idempotent across repeated clicks.
	RuleCounters map[string]int

	WatcherToken string
	Result       model.OperationResult

	clickCount int
	fresh      bool
	freshWave  int
	projected  bool
	executed   bool
}

// NewLens creates a lens in the INITIAL state for one change request.
func NewLens(requestID, channel string, focus *FocusContext) *LensContext {
	return &LensContext{
		State:        StateInitial,
		Focus:        focus,
		Channel:      channel,
		RequestID:    requestID,
		RuleCounters: make(map[string]int),
		freshWave:    -1,
	}
}

// FreshForWave reports whether the projector already ran for the current
// execution wave. A fresh lens skips the projector on re-entry.
func (l *LensContext) FreshForWave() bool {
	return l.fresh && l.freshWave == l.ExecutionWave
}

// MarkFresh records that the projector ran for the current wave.
func (l *LensContext) MarkFresh() {
	l.fresh = true
	l.freshWave = l.ExecutionWave
}

// MarkStale forces the projector to run again on the next click.
func (l *LensContext) MarkStale() {
	l.fresh = false
}

// ClickCount returns the number of clicks consumed so far.
func (l *LensContext) ClickCount() int {
	return l.clickCount
}

// Executed reports whether at least one delta was executed. Sequence
// reservations are reclaimed on failure only while this is false.
func (l *LensContext) Executed() bool {
	return l.executed
}

// CounterGroup is the scope under which this run's rule counters live:
// the owning task's OID, falling back to the request identifier for
// runs not carried by a persisted task.
func (l *LensContext) CounterGroup(task *Task) string {
	if task != nil && task.OID != "" {
		return task.OID
	}
	return l.RequestID
}

// FocusOID returns the identity of the processed focus object, preferring
// the computed new state over the old one. Before the first projection of
// a not-yet-existing focus the primary delta's target is the identity, so
// conflict watchers can watch for concurrent creation.
func (l *LensContext) FocusOID() string {
	if l.Focus == nil {
		return ""
	}
	if l.Focus.ObjectNew != nil && l.Focus.ObjectNew.OID != "" {
		return l.Focus.ObjectNew.OID
	}
	if l.Focus.ObjectOld != nil {
		return l.Focus.ObjectOld.OID
	}
	if l.Focus.PrimaryDelta != nil {
		return l.Focus.PrimaryDelta.OID
	}
	return ""
}

// pendingDeltaCount counts the deltas queued for execution across the
// focus and all projections.
func (l *LensContext) pendingDeltaCount() int {
	count := 0
	if l.Focus != nil {
		if l.Focus.PrimaryDelta != nil {
			count++
		}
		count += len(l.Focus.SecondaryDeltas)
	}
	for _, p := range l.Projections {
		count += len(p.Deltas)
	}
	return count
}

// needsReconciliation reports whether any projection's resolved reaction
// asks for reconciliation of affected objects.
func (l *LensContext) needsReconciliation() (bool, error) {
	for _, p := range l.Projections {
		if p.Sync == nil || p.Tombstone {
			continue
		}
		reconcile, err := p.Sync.DoReconciliation()
		if err != nil {
			return false, err
		}
		if reconcile {
			return true, nil
		}
	}
	return false, nil
}

// lensSnapshot is the JSON shape persisted when a run goes background.
type lensSnapshot struct {
	State          State                 `json:"state"`
	ExecutionWave  int                   `json:"executionWave"`
	ProjectionWave int                   `json:"projectionWave"`
	MaxWave        int                   `json:"maxWave"`
	Channel        string                `json:"channel"`
	RequestID      string                `json:"requestId"`
	FocusOID       string                `json:"focusOid"`
	Result         model.OperationResult `json:"result"`
}

// ResumePayload serializes the lens for later pickup by a background
// task. The snapshot is opaque to the scheduler; only this package reads
// it back.
func (l *LensContext) ResumePayload() (string, error) {
	snap := lensSnapshot{
		State:          l.State,
		ExecutionWave:  l.ExecutionWave,
		ProjectionWave: l.ProjectionWave,
		MaxWave:        l.MaxWave,
		Channel:        l.Channel,
		RequestID:      l.RequestID,
		FocusOID:       l.FocusOID(),
		Result:         l.Result,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal lens snapshot: %w", err)
	}
	return string(data), nil
}
