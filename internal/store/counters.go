package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IncrementCounters atomically increments the counters of the given rules
// within one group and returns the resulting counts.
//
// All increments run inside a single transaction, so concurrent runs
// affecting the same rules observe a consistent increment-and-read: a
// counter can never be read between its increment and the commit.
//
// This is the external counter capability behind the threshold tracker's
// "increment exactly once per run" invariant - the exactly-once part is
// the tracker's job, the atomic part is ours.
func (s *Store) IncrementCounters(ctx context.Context, group string, ruleIDs []string) (map[string]int, error) {
	if len(ruleIDs) == 0 {
		return map[string]int{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("increment counters: begin: %w", err)
	}
	defer tx.Rollback()

	counts := make(map[string]int, len(ruleIDs))
	for _, id := range ruleIDs {
		var count int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO rule_counters (grp, rule_id, count)
			VALUES (?, ?, 1)
			ON CONFLICT(grp, rule_id) DO UPDATE SET count = count + 1
			RETURNING count
		`, group, id).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("increment counter %s/%s: %w", group, id, err)
		}
		counts[id] = count
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("increment counters: commit: %w", err)
	}
	return counts, nil
}

// CounterValue reads a single rule counter. Returns 0 for counters that
// were never incremented.
func (s *Store) CounterValue(ctx context.Context, group, ruleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM rule_counters WHERE grp = ? AND rule_id = ?
	`, group, ruleID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter value %s/%s: %w", group, ruleID, err)
	}
	return count, nil
}
