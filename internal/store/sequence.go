package store

import (
	"context"
	"fmt"
)

// ReserveSequence allocates the next globally monotonic sequence value and
// records the reservation against the request, so a failed run can later
// reclaim what it never used.
//
// The increment and the read happen in one transaction: two concurrent
// runs can never observe the same value.
func (s *Store) ReserveSequence(ctx context.Context, requestID string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("reserve sequence: begin: %w", err)
	}
	defer tx.Rollback()

	var value int64
	err = tx.QueryRowContext(ctx, `
		UPDATE sequence_counter SET value = value + 1 WHERE id = 1
		RETURNING value
	`).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("reserve sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_values (request_id, value) VALUES (?, ?)
	`, requestID, value); err != nil {
		return 0, fmt.Errorf("reserve sequence: record reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("reserve sequence: commit: %w", err)
	}
	return value, nil
}

// ReclaimSequences marks every sequence value reserved by the request as
// reclaimed. The caller must only do this when no delta was executed -
// a concurrently-running executor may already depend on issued values.
func (s *Store) ReclaimSequences(ctx context.Context, requestID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sequence_values SET reclaimed = 1 WHERE request_id = ?
	`, requestID)
	if err != nil {
		return fmt.Errorf("reclaim sequences for %s: %w", requestID, err)
	}
	return nil
}

// ReclaimedSequenceCount reports how many of the request's reservations
// were reclaimed. Used for diagnostics and tests.
func (s *Store) ReclaimedSequenceCount(ctx context.Context, requestID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sequence_values WHERE request_id = ? AND reclaimed = 1
	`, requestID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reclaimed sequence count for %s: %w", requestID, err)
	}
	return count, nil
}
