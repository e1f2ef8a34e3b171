package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/wardenhq/warden/internal/clockwork"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/reaction"
	"github.com/wardenhq/warden/internal/store"
)

// TraceEvent is one audit event in a scenario trace. The content-
// addressed event ID is omitted: it is fully determined by the fields
// kept here.
type TraceEvent struct {
	RequestID string         `json:"request_id"`
	Stage     string         `json:"stage"`
	Wave      int            `json:"wave"`
	Seq       int64          `json:"seq"`
	Payload   map[string]any `json:"payload"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall scenario success: every expect clause and
	// assertion matched.
	Pass bool `json:"pass"`

	// Trace contains the audit events of all requests, in request order
	// and per-request sequence order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// fixedTokens is the deterministic identifier pool for one scenario run.
// Generous enough for every watcher and task a scenario can plausibly
// spawn.
func fixedTokens() []string {
	tokens := make([]string, 32)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%04d", i+1)
	}
	return tokens
}

// Run executes a scenario against a fresh in-memory database and
// returns the result. Expect-clause and assertion failures land in
// result.Errors; only infrastructure failures return a non-nil error.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	defer st.Close()

	cfg, err := config.LoadString(scenario.Policies)
	if err != nil {
		return nil, fmt.Errorf("compile scenario policies: %w", err)
	}

	tokens := clockwork.NewFixedGenerator(fixedTokens()...)
	engine := clockwork.New(clockwork.Collaborators{
		Projector: clockwork.NewRuleProjector(cfg.Rules, reaction.NewCUEEvaluator()),
		Executor:  clockwork.NewStoreChangeExecutor(st),
		Conflicts: clockwork.NewStoreConflictResolver(st, tokens, 0),
		Audit:     clockwork.NewStoreAuditSink(st),
		Counters:  st,
		Scheduler: clockwork.NewStoreTaskScheduler(st, tokens),
	})

	ctx := context.Background()
	result := NewResult()

	for i, seed := range scenario.Setup {
		obj := &model.FocusObject{
			OID:   seed.OID,
			Type:  seed.Type,
			Name:  seed.Name,
			Attrs: model.Attributes(seed.Attrs),
		}
		if err := st.CreateFocus(ctx, obj); err != nil {
			return nil, fmt.Errorf("setup[%d]: seed focus %s: %w", i, seed.OID, err)
		}
	}

	for i, step := range scenario.Requests {
		if err := runRequest(ctx, st, engine, cfg, step, result); err != nil {
			return nil, fmt.Errorf("requests[%d]: %w", i, err)
		}
	}

	for _, step := range scenario.Requests {
		events, err := st.ListAuditEvents(ctx, step.RequestID)
		if err != nil {
			return nil, fmt.Errorf("read audit trail for %s: %w", step.RequestID, err)
		}
		for _, ev := range events {
			result.Trace = append(result.Trace, TraceEvent{
				RequestID: ev.RequestID,
				Stage:     ev.Stage,
				Wave:      ev.Wave,
				Seq:       ev.Seq,
				Payload:   ev.Payload,
			})
		}
	}

	for i, a := range scenario.Assertions {
		evalAssertion(ctx, st, i, &a, result)
	}

	return result, nil
}

// runRequest drives one change request through the engine and validates
// its expect clause.
func runRequest(ctx context.Context, st *store.Store, engine *clockwork.Engine, cfg *config.Config, step RequestStep, result *Result) error {
	lens, err := buildLens(ctx, st, cfg, step)
	if err != nil {
		return err
	}

	_, runErr := engine.Run(ctx, lens, &clockwork.Task{ID: step.RequestID})

	expect := step.Expect
	switch {
	case expect == nil || expect.Error == "":
		if runErr != nil {
			result.AddError("request %s: unexpected run error: %v", step.RequestID, runErr)
			return nil
		}
	default:
		if runErr == nil {
			result.AddError("request %s: expected error containing %q, run succeeded", step.RequestID, expect.Error)
			return nil
		}
		if !strings.Contains(runErr.Error(), expect.Error) {
			result.AddError("request %s: error %q does not contain %q", step.RequestID, runErr, expect.Error)
		}
	}

	if expect != nil && expect.Status != "" && string(lens.Result.Status) != expect.Status {
		result.AddError("request %s: status %q, expected %q", step.RequestID, lens.Result.Status, expect.Status)
	}
	return nil
}

// buildLens constructs the lens for one request step, reading the
// focus's current state when it exists and attaching the sync
// projection when the step declares one.
func buildLens(ctx context.Context, st *store.Store, cfg *config.Config, step RequestStep) (*clockwork.LensContext, error) {
	focus := &clockwork.FocusContext{PrimaryDelta: step.Delta.toDelta()}

	oid := step.FocusOID
	if oid == "" && step.Delta != nil {
		oid = step.Delta.OID
	}
	if oid != "" {
		old, err := st.GetFocus(ctx, oid)
		switch {
		case err == nil:
			focus.ObjectOld = old
		case model.IsKind(err, model.KindNotFound):
			// New focus.
		default:
			return nil, err
		}
	}

	channel := step.Channel
	if channel == "" {
		channel = "rest"
	}
	lens := clockwork.NewLens(step.RequestID, channel, focus)
	lens.MaxWave = step.MaxWave
	lens.Preview = step.Preview

	if step.Sync != nil {
		policy, err := findSyncPolicy(cfg, step.Sync.Policy)
		if err != nil {
			return nil, err
		}
		sync := reaction.NewContext(policy, reaction.Situation(step.Sync.Situation), channel, reaction.NewCUEEvaluator())
		sync.ResourceOID = step.Sync.ResourceOID
		lens.Projections = append(lens.Projections, &clockwork.ProjectionContext{
			ResourceOID: step.Sync.ResourceOID,
			Tombstone:   step.Sync.Tombstone,
			Sync:        sync,
		})
	}
	return lens, nil
}

func findSyncPolicy(cfg *config.Config, name string) (*reaction.ObjectSyncPolicy, error) {
	for i := range cfg.SyncPolicies {
		if cfg.SyncPolicies[i].Name == name {
			return &cfg.SyncPolicies[i], nil
		}
	}
	return nil, fmt.Errorf("unknown synchronization policy %q", name)
}

// toDelta converts the YAML delta spec to the model delta.
func (d *DeltaStep) toDelta() *model.ObjectDelta {
	if d == nil {
		return nil
	}
	delta := &model.ObjectDelta{
		Type:       model.ChangeType(d.Type),
		OID:        d.OID,
		ObjectType: d.ObjectType,
	}
	for _, it := range d.Items {
		delta.Items = append(delta.Items, model.ItemDelta{
			Path:   it.Path,
			Kind:   model.ModificationKind(it.Kind),
			Values: it.Values,
		})
	}
	return delta
}
