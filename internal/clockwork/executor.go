package clockwork

import (
	"context"
	"log/slog"

	"github.com/wardenhq/warden/internal/store"
)

// StoreChangeExecutor writes the lens's queued focus deltas to the
// sqlite store. Provisioning-target execution belongs to connector
// infrastructure outside this repository; here every projection delta
// has already been folded into the focus state by the projector.
type StoreChangeExecutor struct {
	store *store.Store
}

// NewStoreChangeExecutor creates an executor over the store.
func NewStoreChangeExecutor(s *store.Store) *StoreChangeExecutor {
	return &StoreChangeExecutor{store: s}
}

// ExecuteChanges persists the computed focus state. Queued secondary
// deltas (policy-state metadata) are applied to the object before the
// write and consumed. A version mismatch surfaces as a
// *model.ConflictDetectedError from the store, unwrapped, so the run
// loop can match on it.
func (e *StoreChangeExecutor) ExecuteChanges(ctx context.Context, lens *LensContext, task *Task) (bool, error) {
	f := lens.Focus
	if f == nil {
		return false, nil
	}

	if f.Deleting {
		oid := lens.FocusOID()
		if err := e.store.DeleteFocus(ctx, oid); err != nil {
			return false, err
		}
		f.PrimaryDelta = nil
		f.SecondaryDeltas = nil
		slog.Debug("focus deleted", "focus_oid", oid)
		return false, e.rebaseOwnWatcher(ctx, lens)
	}

	if f.ObjectNew == nil {
		return false, nil
	}
	if f.PrimaryDelta == nil && len(f.SecondaryDeltas) == 0 {
		// Nothing queued this wave; skip the write so the focus version
		// only moves when state actually changed.
		return false, nil
	}

	for _, d := range f.SecondaryDeltas {
		applyDelta(f.ObjectNew, d)
	}

	if f.ObjectOld == nil && f.ObjectNew.Version == 0 {
		if err := e.store.CreateFocus(ctx, f.ObjectNew); err != nil {
			return false, err
		}
	} else {
		if err := e.store.UpdateFocus(ctx, f.ObjectNew); err != nil {
			return false, err
		}
	}

	// Deltas are consumed; the persisted state is now the before-state
	// for any further wave.
	f.PrimaryDelta = nil
	f.SecondaryDeltas = nil
	f.ObjectOld = cloneFocus(f.ObjectNew)

	slog.Debug("focus changes executed",
		"focus_oid", f.ObjectNew.OID,
		"version", f.ObjectNew.Version,
		"wave", lens.ExecutionWave,
	)
	return false, e.rebaseOwnWatcher(ctx, lens)
}

// rebaseOwnWatcher moves the run's own conflict watcher past the write
// it just made. The watcher exists to detect OTHER writers; without the
// rebase every run would trip over its own executed changes.
func (e *StoreChangeExecutor) rebaseOwnWatcher(ctx context.Context, lens *LensContext) error {
	if lens.WatcherToken == "" {
		return nil
	}
	return e.store.RebaseWatcher(ctx, lens.WatcherToken)
}
