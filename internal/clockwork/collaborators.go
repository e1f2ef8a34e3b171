package clockwork

import (
	"context"
	"sync/atomic"
)

// Mode is the outcome of a run (or of a single click).
type Mode string

const (
	// ModeForeground means processing finished synchronously.
	ModeForeground Mode = "foreground"
	// ModeBackground means remaining work was handed off to a scheduled
	// task; the caller polls the task instead of waiting.
	ModeBackground Mode = "background"
)

// Task is the unit of work carrying a run. External callers may mark it
// as unable to continue; the engine observes the flag between clicks and
// stops gracefully.
type Task struct {
	ID  string
	OID string // owning task object, used as the rule counter group

	cannotContinue atomic.Bool
}

// Stop marks the task as unable to continue. Safe from any goroutine.
func (t *Task) Stop() {
	t.cannotContinue.Store(true)
}

// CanRun reports whether the engine may keep clicking.
func (t *Task) CanRun() bool {
	return t == nil || !t.cannotContinue.Load()
}

// Projector computes or resumes per-wave deltas into the lens. Its
// internals (attribute mappings, correlation) are outside this package;
// the engine only decides when it runs.
type Projector interface {
	Project(ctx context.Context, lens *LensContext, task *Task) error
	Resume(ctx context.Context, lens *LensContext, task *Task) error
}

// ChangeExecutor writes the lens's queued deltas to storage and to
// provisioning targets. A true restart return means the engine must not
// advance the execution wave and must recompute the same wave.
type ChangeExecutor interface {
	ExecuteChanges(ctx context.Context, lens *LensContext, task *Task) (restart bool, err error)
}

// ConflictResolver implements the watcher protocol around a run: a
// watcher registered before the first click, a detection check at the
// final foreground click, and a bounded resolution pass when the check
// trips.
type ConflictResolver interface {
	RegisterWatcher(ctx context.Context, lens *LensContext) (token string, err error)
	DetectConflicts(ctx context.Context, lens *LensContext) (bool, error)
	ResolveIfPresent(ctx context.Context, lens *LensContext, task *Task) error
	UnregisterWatcher(ctx context.Context, token string) error
}

// AuditSink records one audit event per stage transition.
// Stage is one of model.StageRequest, model.StageExecution,
// model.StageFinalExecution.
//
// The sink owns the run's sequence reservations; ReclaimSequences gives
// them back after a fatal failure. The engine calls it only when no
// delta was executed yet.
type AuditSink interface {
	Audit(ctx context.Context, lens *LensContext, stage string) error
	ReclaimSequences(ctx context.Context, lens *LensContext) error
}

// HookDispatcher runs deployment-specific post-change logic (migrations,
// persona processing). InvokeHooks may answer ModeBackground to request
// a handoff instead of finishing synchronously.
type HookDispatcher interface {
	InvokeHooks(ctx context.Context, lens *LensContext, task *Task) (Mode, error)
	InvokePreview(ctx context.Context, lens *LensContext, task *Task) error
}

// TaskScheduler persists and schedules the background continuation of a
// run. Returns the spawned task's identifier.
type TaskScheduler interface {
	SwitchToBackground(ctx context.Context, lens *LensContext, kind string) (string, error)
}

// NopHooks is a HookDispatcher that does nothing and always finishes in
// the foreground. Used by the CLI and by runs with no hooks configured.
type NopHooks struct{}

func (NopHooks) InvokeHooks(context.Context, *LensContext, *Task) (Mode, error) {
	return ModeForeground, nil
}

func (NopHooks) InvokePreview(context.Context, *LensContext, *Task) error {
	return nil
}
