package clockwork

import (
	"context"
	"log/slog"

	"github.com/wardenhq/warden/internal/store"
)

// StoreTaskScheduler persists background continuations as task rows.
// Actual pickup and execution of the persisted tasks belongs to the
// deployment's task runner, not to this package.
type StoreTaskScheduler struct {
	store  *store.Store
	tokens TokenGenerator
}

// NewStoreTaskScheduler creates a scheduler over the store.
func NewStoreTaskScheduler(s *store.Store, tokens TokenGenerator) *StoreTaskScheduler {
	return &StoreTaskScheduler{store: s, tokens: tokens}
}

// SwitchToBackground snapshots the lens and persists it as a pending
// task of the given kind. Returns the spawned task's identifier.
func (s *StoreTaskScheduler) SwitchToBackground(ctx context.Context, lens *LensContext, kind string) (string, error) {
	payload, err := lens.ResumePayload()
	if err != nil {
		return "", err
	}

	taskID := s.tokens.Generate()
	if err := s.store.InsertBackgroundTask(ctx, store.BackgroundTask{
		ID:        taskID,
		Kind:      kind,
		RequestID: lens.RequestID,
		Payload:   payload,
	}); err != nil {
		return "", err
	}

	slog.Debug("background task persisted", "task_id", taskID, "kind", kind)
	return taskID, nil
}
