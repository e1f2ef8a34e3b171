package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wardenhq/warden/internal/model"
)

// WriteAuditEvent inserts an audit record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - the ID is
// content-addressed, so writing the same run stage twice is a no-op.
func (s *Store) WriteAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	payload := "{}"
	if ev.Payload != nil {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("write audit event %s: marshal payload: %w", ev.ID, err)
		}
		payload = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, request_id, stage, wave, seq, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, ev.ID, ev.RequestID, ev.Stage, ev.Wave, ev.Seq, payload)
	if err != nil {
		return fmt.Errorf("write audit event %s: %w", ev.ID, err)
	}
	return nil
}

// ListAuditEvents returns all audit records for a request in deterministic
// order: ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) when no records exist.
func (s *Store) ListAuditEvents(ctx context.Context, requestID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, stage, wave, seq, payload
		FROM audit_events
		WHERE request_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := []model.AuditEvent{}
	for rows.Next() {
		var ev model.AuditEvent
		var payload string
		if err := rows.Scan(&ev.ID, &ev.RequestID, &ev.Stage, &ev.Wave, &ev.Seq, &payload); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if payload != "" && payload != "{}" {
			if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal audit payload %s: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
