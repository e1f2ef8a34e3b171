package clockwork

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

// DefaultWatcherCap is the default ceiling on concurrently registered
// conflict watchers per worker. Registrations beyond the cap fail as
// configuration errors; a growing watcher population means runs are
// leaking watchers, not that more are needed.
const DefaultWatcherCap = 10

// StoreConflictResolver implements the watcher protocol against the
// sqlite store: a watcher captures the focus version at registration,
// detection compares it with the current version, and resolution gets
// exactly one pass per watcher before the conflict is handed to a
// background re-resolution task.
type StoreConflictResolver struct {
	store  *store.Store
	tokens TokenGenerator
	cap    int

	mu       sync.Mutex
	resolved map[string]bool // watcher tokens that used their resolution pass
}

// NewStoreConflictResolver creates a resolver over the store. A
// watcherCap of 0 means DefaultWatcherCap.
func NewStoreConflictResolver(s *store.Store, tokens TokenGenerator, watcherCap int) *StoreConflictResolver {
	if watcherCap <= 0 {
		watcherCap = DefaultWatcherCap
	}
	return &StoreConflictResolver{
		store:    s,
		tokens:   tokens,
		cap:      watcherCap,
		resolved: make(map[string]bool),
	}
}

// RegisterWatcher registers a watcher for the lens's focus object and
// returns its token. Enforces the watcher cap.
func (r *StoreConflictResolver) RegisterWatcher(ctx context.Context, lens *LensContext) (string, error) {
	live, err := r.store.LiveWatcherCount(ctx)
	if err != nil {
		return "", err
	}
	if live >= r.cap {
		return "", model.NewError(model.KindConfiguration,
			"conflict watcher cap reached (%d live): watchers are leaking", live)
	}

	token := r.tokens.Generate()
	if err := r.store.RegisterWatcher(ctx, token, lens.FocusOID()); err != nil {
		return "", err
	}
	return token, nil
}

// DetectConflicts reports whether another writer modified the watched
// focus since registration.
func (r *StoreConflictResolver) DetectConflicts(ctx context.Context, lens *LensContext) (bool, error) {
	if lens.WatcherToken == "" {
		return false, nil
	}
	conflict, _, err := r.store.CheckWatcher(ctx, lens.WatcherToken)
	if err != nil {
		return false, err
	}
	return conflict, nil
}

// ResolveIfPresent performs the bounded resolution pass: rebase the
// watcher onto the current focus version and queue a background
// re-resolution task. A second call for the same watcher is a no-op -
// the retry is bounded, not a loop.
func (r *StoreConflictResolver) ResolveIfPresent(ctx context.Context, lens *LensContext, task *Task) error {
	token := lens.WatcherToken
	if token == "" {
		return nil
	}

	r.mu.Lock()
	already := r.resolved[token]
	r.resolved[token] = true
	r.mu.Unlock()
	if already {
		slog.Debug("conflict already given its resolution pass", "token", token)
		return nil
	}

	if err := r.store.RebaseWatcher(ctx, token); err != nil {
		return err
	}

	payload, err := lens.ResumePayload()
	if err != nil {
		return err
	}
	taskID := r.tokens.Generate()
	if err := r.store.InsertBackgroundTask(ctx, store.BackgroundTask{
		ID:        taskID,
		Kind:      TaskKindReconciliation,
		RequestID: lens.RequestID,
		Payload:   payload,
	}); err != nil {
		return err
	}

	slog.Info("conflict queued for re-resolution",
		"request_id", lens.RequestID,
		"focus_oid", lens.FocusOID(),
		"task_id", taskID,
	)
	return nil
}

// UnregisterWatcher removes the watcher and its resolution bookkeeping.
func (r *StoreConflictResolver) UnregisterWatcher(ctx context.Context, token string) error {
	r.mu.Lock()
	delete(r.resolved, token)
	r.mu.Unlock()
	return r.store.UnregisterWatcher(ctx, token)
}
