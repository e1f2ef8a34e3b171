package clockwork

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/policy"
)

// DefaultMaxClicks is the default ceiling on clicks per run. Exceeding
// it signals a probable cycle in policy or mapping configuration, most
// often a misconfigured bidirectional mapping.
const DefaultMaxClicks = 200

// Background task kinds spawned at the FINAL click.
const (
	TaskKindPersona        = "persona"
	TaskKindReconciliation = "reconciliation"
)

// Attribute paths that only the engine itself may derive. A primary
// delta touching one of them is rejected in the INITIAL click.
var derivedRefPaths = []string{"linkRef", "roleMembershipRef"}

// Collaborators are the external components a run invokes. Projector and
// Executor are required; the rest degrade to no-ops when nil (preview
// and test setups).
type Collaborators struct {
	Projector Projector
	Executor  ChangeExecutor
	Conflicts ConflictResolver
	Audit     AuditSink
	Counters  policy.CounterStore
	Hooks     HookDispatcher
	Scheduler TaskScheduler
}

// Engine drives lens contexts to convergence. One engine serves many
// concurrent runs; all per-run state lives on the lens.
type Engine struct {
	projector Projector
	executor  ChangeExecutor
	conflicts ConflictResolver
	audit     AuditSink
	tracker   *policy.ThresholdTracker
	recorder  policy.Recorder
	hooks     HookDispatcher
	scheduler TaskScheduler

	maxClicks int
}

// Option configures engine parameters.
type Option func(*Engine)

// WithMaxClicks sets the click ceiling per run.
//
// Default: 200 (DefaultMaxClicks).
// Use WithMaxClicks(5) for testing the cycle guard.
func WithMaxClicks(maxClicks int) Option {
	return func(e *Engine) {
		e.maxClicks = maxClicks
	}
}

// New creates an engine over the given collaborators.
func New(c Collaborators, opts ...Option) *Engine {
	hooks := c.Hooks
	if hooks == nil {
		hooks = NopHooks{}
	}

	e := &Engine{
		projector: c.Projector,
		executor:  c.Executor,
		conflicts: c.Conflicts,
		audit:     c.Audit,
		tracker:   policy.NewThresholdTracker(c.Counters),
		hooks:     hooks,
		scheduler: c.Scheduler,
		maxClicks: DefaultMaxClicks,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// MaxClicks returns the configured click ceiling.
// Used for testing and diagnostics.
func (e *Engine) MaxClicks() int {
	return e.maxClicks
}

// Run drives the lens to a terminal state and returns how it got there:
// ModeForeground when processing finished synchronously, ModeBackground
// when remaining work was handed off to a task.
//
// On a fatal failure the error is recorded on the lens operation result,
// audited as a failed execution, sequence reservations are reclaimed if
// no delta was executed, and the error is returned. The lens state is
// FINAL on every non-background return.
func (e *Engine) Run(ctx context.Context, lens *LensContext, task *Task) (Mode, error) {
	slog.Info("clockwork run starting",
		"request_id", lens.RequestID,
		"channel", lens.Channel,
		"focus_oid", lens.FocusOID(),
		"preview", lens.Preview,
	)

	if e.conflicts != nil && !lens.Preview {
		token, err := e.conflicts.RegisterWatcher(ctx, lens)
		if err != nil {
			return ModeForeground, e.fail(ctx, lens, err)
		}
		lens.WatcherToken = token
		defer func() {
			if err := e.conflicts.UnregisterWatcher(ctx, token); err != nil {
				slog.Warn("watcher unregistration failed", "token", token, "error", err)
			}
		}()
	}

	if err := e.auditStage(ctx, lens, model.StageRequest); err != nil {
		return ModeForeground, e.fail(ctx, lens, err)
	}

	mode, err := e.runClicks(ctx, lens, task)
	if err != nil {
		return ModeForeground, e.fail(ctx, lens, err)
	}
	if mode == ModeBackground {
		slog.Info("clockwork run handed off",
			"request_id", lens.RequestID,
			"task_id", lens.Result.BackgroundTaskID,
		)
		return ModeBackground, nil
	}

	// Final foreground click: did any other writer touch the focus while
	// we were running? A detected conflict is not a failure; the resolver
	// gets one bounded resolution pass.
	if e.conflicts != nil && !lens.Preview {
		conflict, err := e.conflicts.DetectConflicts(ctx, lens)
		if err != nil {
			return ModeForeground, e.fail(ctx, lens, err)
		}
		if conflict {
			slog.Info("focus conflict detected at final click",
				"request_id", lens.RequestID,
				"focus_oid", lens.FocusOID(),
			)
			if err := e.conflicts.ResolveIfPresent(ctx, lens, task); err != nil {
				return ModeForeground, e.fail(ctx, lens, err)
			}
			lens.Result.AddWarning("concurrent modification of focus detected and handed to conflict resolution")
		}
	}

	slog.Info("clockwork run finished",
		"request_id", lens.RequestID,
		"clicks", lens.ClickCount(),
		"waves", lens.ExecutionWave,
		"status", lens.Result.Status,
	)
	return ModeForeground, nil
}

// runClicks is the bounded click loop.
func (e *Engine) runClicks(ctx context.Context, lens *LensContext, task *Task) (Mode, error) {
	for {
		if !task.CanRun() {
			slog.Info("carrying task cannot continue, stopping between clicks",
				"request_id", lens.RequestID,
				"task_id", task.ID,
			)
			lens.Result.RecordInProgress(task.ID)
			return ModeBackground, nil
		}
		if lens.clickCount >= e.maxClicks {
			return "", model.NewError(model.KindConfiguration,
				"too many clicks (%d): probable cycle in policy or mapping configuration", lens.clickCount)
		}
		lens.clickCount++

		mode, done, err := e.click(ctx, lens, task)
		if err != nil {
			var conflict *model.ConflictDetectedError
			if errors.As(err, &conflict) {
				// Recorded, not rethrown. The run completes in the
				// foreground; resolution is deferred to the conflict
				// resolver at the final click.
				slog.Warn("conflict detected during execution, deferring resolution",
					"request_id", lens.RequestID,
					"focus_oid", conflict.FocusOID,
					"base_version", conflict.BaseVersion,
					"seen_version", conflict.SeenVersion,
				)
				lens.Result.AddWarning(conflict.Error())
				lens.State = StateFinal
				continue
			}
			return "", err
		}
		if mode == ModeBackground {
			return ModeBackground, nil
		}
		if done {
			return ModeForeground, nil
		}
	}
}

// click advances the state machine by exactly one step. Re-entrant: a
// lens that is already fresh for the current execution wave skips the
// projector rather than recomputing.
func (e *Engine) click(ctx context.Context, lens *LensContext, task *Task) (Mode, bool, error) {
	slog.Debug("click",
		"request_id", lens.RequestID,
		"state", lens.State,
		"wave", lens.ExecutionWave,
		"click", lens.clickCount,
	)

	switch lens.State {
	case StateInitial:
		return ModeForeground, false, e.clickInitial(lens)
	case StatePrimary:
		return ModeForeground, false, e.clickPrimary(ctx, lens, task)
	case StateSecondary:
		return ModeForeground, false, e.clickSecondary(ctx, lens, task)
	case StateFinal:
		return e.clickFinal(ctx, lens, task)
	default:
		return "", false, model.NewError(model.KindSchema, "unknown lens state %q", lens.State)
	}
}

// clickInitial enforces policy rules valid before any computation and
// rejects direct manipulation of derived reference attributes.
func (e *Engine) clickInitial(lens *LensContext) error {
	if lens.Focus != nil {
		if err := e.enforcePolicyRules(lens); err != nil {
			return err
		}

		if lens.Focus.PrimaryDelta != nil {
			for _, path := range derivedRefPaths {
				if lens.Focus.PrimaryDelta.Touches(path) {
					return model.NewError(model.KindSchema,
						"direct manipulation of derived reference %s is not allowed", path)
				}
			}
		}
	}

	if err := e.limitPropagation(lens); err != nil {
		return err
	}

	lens.State = StatePrimary
	return nil
}

// limitPropagation clamps the wave ceiling to zero when any projection's
// resolved synchronization reaction asks for propagation limiting. The
// triggering change still executes; only the fan-out into further waves
// is cut off.
func (e *Engine) limitPropagation(lens *LensContext) error {
	for _, p := range lens.Projections {
		if p.Sync == nil {
			continue
		}
		limit, err := p.Sync.LimitPropagation()
		if err != nil {
			return err
		}
		if limit && lens.MaxWave > 0 {
			slog.Info("propagation limited by synchronization reaction",
				"request_id", lens.RequestID,
				"channel", lens.Channel,
				"situation", string(p.Sync.Situation),
				"max_wave", lens.MaxWave,
			)
			lens.MaxWave = 0
		}
	}
	return nil
}

// clickPrimary computes the focus projection. Enforcement runs again
// afterwards: rules first evaluated by this projection must still be
// able to block the change before anything executes.
func (e *Engine) clickPrimary(ctx context.Context, lens *LensContext, task *Task) error {
	if err := e.projectIfStale(ctx, lens, task); err != nil {
		return err
	}
	if err := e.enforcePolicyRules(lens); err != nil {
		return err
	}
	lens.State = StateSecondary
	return nil
}

// enforcePolicyRules rejects the change when an enforced rule triggered,
// unless the rule carries a threshold that has not been exceeded yet.
func (e *Engine) enforcePolicyRules(lens *LensContext) error {
	if lens.Focus == nil {
		return nil
	}
	for _, er := range lens.Focus.EvaluatedRules {
		if !er.Enforced || !er.Triggered {
			continue
		}
		if er.HasThreshold() && !er.OverThreshold() {
			continue
		}
		err := model.NewError(model.KindPolicy, "policy rule %s rejected the change: %s", er.Name, er.Message)
		err.RuleID = er.ID
		err.FocusOID = lens.FocusOID()
		return err
	}
	return nil
}

// clickSecondary runs one execution wave: projection (unless fresh),
// change execution, execution-stage audit, then wave advancement unless
// the executor requested a same-wave restart.
func (e *Engine) clickSecondary(ctx context.Context, lens *LensContext, task *Task) error {
	if err := e.projectIfStale(ctx, lens, task); err != nil {
		return err
	}

	if !lens.Preview {
		hadDeltas := lens.pendingDeltaCount() > 0

		restart, err := e.executor.ExecuteChanges(ctx, lens, task)
		if err != nil {
			return err
		}
		if hadDeltas {
			lens.executed = true
		}

		if err := e.auditStage(ctx, lens, model.StageExecution); err != nil {
			return err
		}

		if restart {
			lens.MarkStale()
			return nil
		}
	}

	lens.ExecutionWave++
	if lens.ExecutionWave > lens.MaxWave {
		lens.State = StateFinal
	}
	return nil
}

// clickFinal audits the final execution, runs hooks and persona
// processing, and decides whether affected-object reconciliation hands
// off to a background task. This is the terminal click.
func (e *Engine) clickFinal(ctx context.Context, lens *LensContext, task *Task) (Mode, bool, error) {
	if lens.Preview {
		if err := e.hooks.InvokePreview(ctx, lens, task); err != nil {
			return "", false, err
		}
		lens.Result.RecordSuccess()
		return ModeForeground, true, nil
	}

	if err := e.auditStage(ctx, lens, model.StageFinalExecution); err != nil {
		return "", false, err
	}

	mode, err := e.hooks.InvokeHooks(ctx, lens, task)
	if err != nil {
		return "", false, err
	}
	if mode == ModeBackground {
		return e.handOff(ctx, lens, TaskKindPersona)
	}

	reconcile, err := lens.needsReconciliation()
	if err != nil {
		return "", false, err
	}
	if reconcile {
		return e.handOff(ctx, lens, TaskKindReconciliation)
	}

	lens.Result.RecordSuccess()
	return ModeForeground, true, nil
}

// projectIfStale invokes the projector for the current execution wave
// unless the lens is already fresh for it. A projection wave lagging the
// execution wave forces recomputation.
func (e *Engine) projectIfStale(ctx context.Context, lens *LensContext, task *Task) error {
	if lens.ProjectionWave < lens.ExecutionWave {
		lens.MarkStale()
	}
	if lens.FreshForWave() {
		return nil
	}

	// The round recomputes rules and recorder output from scratch.
	if lens.Focus != nil {
		lens.Focus.SecondaryDeltas = nil
	}

	var err error
	if !lens.projected {
		err = e.projector.Project(ctx, lens, task)
		lens.projected = true
	} else {
		err = e.projector.Resume(ctx, lens, task)
	}
	if err != nil {
		return err
	}

	if lens.Focus != nil {
		if !lens.Preview {
			group := lens.CounterGroup(task)
			if err := e.tracker.UpdateCounters(ctx, lens.RuleCounters, group, lens.Focus.EvaluatedRules); err != nil {
				return err
			}
		}
		e.recordPolicyState(lens)
	}

	lens.MarkFresh()
	return nil
}

// recordPolicyState compares evaluated rules against the persisted
// policy-situation and triggered-rule metadata and queues the minimal
// deltas needed to keep them in sync.
func (e *Engine) recordPolicyState(lens *LensContext) {
	f := lens.Focus
	if f == nil || f.ObjectNew == nil {
		return
	}

	toRecord := policy.RulesToRecord(f.EvaluatedRules)

	items := e.recorder.ObjectStateDeltas(f.ObjectNew, f.Deleting, toRecord)
	for _, a := range f.ObjectNew.Assignments {
		items = append(items, e.recorder.AssignmentStateDeltas(f.ObjectNew, f.Deleting, a.ID, a.TargetOID, toRecord)...)
	}
	if len(items) == 0 {
		return
	}

	f.SecondaryDeltas = append(f.SecondaryDeltas, &model.ObjectDelta{
		Type:       model.ChangeModify,
		OID:        f.ObjectNew.OID,
		ObjectType: f.ObjectNew.Type,
		Items:      items,
	})
}

// handOff hands remaining work to the task scheduler and marks the
// operation result in-progress with the spawned task's identifier.
func (e *Engine) handOff(ctx context.Context, lens *LensContext, kind string) (Mode, bool, error) {
	if e.scheduler == nil {
		return "", false, model.NewError(model.KindConfiguration, "%s processing requires a task scheduler", kind)
	}
	taskID, err := e.scheduler.SwitchToBackground(ctx, lens, kind)
	if err != nil {
		return "", false, err
	}
	lens.Result.RecordInProgress(taskID)
	slog.Info("run switched to background",
		"request_id", lens.RequestID,
		"kind", kind,
		"task_id", taskID,
	)
	return ModeBackground, true, nil
}

func (e *Engine) auditStage(ctx context.Context, lens *LensContext, stage string) error {
	if e.audit == nil || lens.Preview {
		return nil
	}
	if err := e.audit.Audit(ctx, lens, stage); err != nil {
		return model.WrapError(model.KindCommunication, err, "audit %s stage for request %s", stage, lens.RequestID)
	}
	return nil
}

// fail records a fatal failure on the lens result, audits it as a failed
// execution, reclaims sequence reservations if nothing was executed, and
// returns the cause for the caller.
func (e *Engine) fail(ctx context.Context, lens *LensContext, cause error) error {
	lens.Result.RecordFatal(cause)
	lens.State = StateFinal

	if e.audit != nil && !lens.Preview {
		if err := e.audit.Audit(ctx, lens, model.StageExecution); err != nil {
			slog.Error("failure audit failed", "request_id", lens.RequestID, "error", err)
		}
		if !lens.Executed() {
			if err := e.audit.ReclaimSequences(ctx, lens); err != nil {
				slog.Warn("sequence reclamation failed", "request_id", lens.RequestID, "error", err)
			}
		}
	}

	slog.Error("clockwork run failed",
		"request_id", lens.RequestID,
		"focus_oid", lens.FocusOID(),
		"kind", model.KindOf(cause),
		"error", cause,
	)
	return cause
}
