package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wardenhq/warden/internal/model"
)

// Background task states.
const (
	TaskStatePending = "pending"
	TaskStateDone    = "done"
)

// BackgroundTask is a persisted continuation of a run that handed off
// remaining work (persona processing, affected-object reconciliation).
// Payload is the opaque lens snapshot the continuation resumes from.
type BackgroundTask struct {
	ID        string
	Kind      string
	RequestID string
	Payload   string
	State     string
}

// InsertBackgroundTask persists a continuation task.
// Uses ON CONFLICT DO NOTHING - a retried handoff with the same task ID
// is a no-op.
func (s *Store) InsertBackgroundTask(ctx context.Context, t BackgroundTask) error {
	if t.State == "" {
		t.State = TaskStatePending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_tasks (id, kind, request_id, payload, state)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.Kind, t.RequestID, t.Payload, t.State)
	if err != nil {
		return fmt.Errorf("insert background task %s: %w", t.ID, err)
	}
	return nil
}

// GetBackgroundTask reads a continuation task by ID.
func (s *Store) GetBackgroundTask(ctx context.Context, id string) (*BackgroundTask, error) {
	var t BackgroundTask
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, request_id, payload, state
		FROM background_tasks WHERE id = ?
	`, id).Scan(&t.ID, &t.Kind, &t.RequestID, &t.Payload, &t.State)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewError(model.KindNotFound, "background task %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get background task %s: %w", id, err)
	}
	return &t, nil
}
