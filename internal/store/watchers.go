package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wardenhq/warden/internal/model"
)

// RegisterWatcher records a conflict watcher for a focus object, capturing
// the focus version at registration time as the comparison base. A focus
// that does not exist yet registers with base version 0, so its creation
// by another writer is still detected.
func (s *Store) RegisterWatcher(ctx context.Context, token, focusOID string) error {
	base, _, err := s.FocusVersion(ctx, focusOID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflict_watchers (token, focus_oid, base_version)
		VALUES (?, ?, ?)
	`, token, focusOID, base)
	if err != nil {
		return fmt.Errorf("register watcher %s: %w", token, err)
	}
	return nil
}

// UnregisterWatcher removes a watcher registration. Idempotent.
func (s *Store) UnregisterWatcher(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conflict_watchers WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("unregister watcher %s: %w", token, err)
	}
	return nil
}

// LiveWatcherCount returns the number of registered watchers. The engine's
// conflict resolver enforces a hard cap against this to prevent leaks.
func (s *Store) LiveWatcherCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conflict_watchers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("live watcher count: %w", err)
	}
	return count, nil
}

// CheckWatcher compares the watched focus object's current version against
// the version captured at registration. A differing version means another
// writer modified the focus while the watcher was live.
func (s *Store) CheckWatcher(ctx context.Context, token string) (conflict bool, seen int64, err error) {
	var focusOID string
	var base int64
	err = s.db.QueryRowContext(ctx, `
		SELECT focus_oid, base_version FROM conflict_watchers WHERE token = ?
	`, token).Scan(&focusOID, &base)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, model.NewError(model.KindNotFound, "watcher %s not registered", token)
	}
	if err != nil {
		return false, 0, fmt.Errorf("check watcher %s: %w", token, err)
	}

	seen, _, err = s.FocusVersion(ctx, focusOID)
	if err != nil {
		return false, 0, err
	}
	return seen != base, seen, nil
}

// RebaseWatcher updates a watcher's base version to the current focus
// version. Used after a detected conflict has been resolved so the final
// check does not trip on the same write again.
func (s *Store) RebaseWatcher(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conflict_watchers
		SET base_version = COALESCE(
			(SELECT version FROM focus_objects WHERE oid = conflict_watchers.focus_oid), 0)
		WHERE token = ?
	`, token)
	if err != nil {
		return fmt.Errorf("rebase watcher %s: %w", token, err)
	}
	return nil
}
