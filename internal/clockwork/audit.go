package clockwork

import (
	"context"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

// StoreAuditSink records audit events in the sqlite store. Sequence
// numbers are reserved from the store's global counter per event, so
// events within one run are emitted in execution order; the
// content-addressed event ID makes re-emission after a retry idempotent.
type StoreAuditSink struct {
	store *store.Store
}

// NewStoreAuditSink creates an audit sink over the store.
func NewStoreAuditSink(s *store.Store) *StoreAuditSink {
	return &StoreAuditSink{store: s}
}

func (a *StoreAuditSink) Audit(ctx context.Context, lens *LensContext, stage string) error {
	payload := map[string]any{
		"state":   string(lens.State),
		"channel": lens.Channel,
	}
	if oid := lens.FocusOID(); oid != "" {
		payload["focus_oid"] = oid
	}
	if lens.Result.Status != model.StatusUnknown {
		payload["status"] = string(lens.Result.Status)
	}
	if lens.Result.Fatal {
		payload["fatal"] = true
		payload["message"] = lens.Result.Message
	}

	seq, err := a.store.ReserveSequence(ctx, lens.RequestID)
	if err != nil {
		return err
	}
	id, err := model.AuditEventID(lens.RequestID, stage, lens.ExecutionWave, seq, payload)
	if err != nil {
		return err
	}

	return a.store.WriteAuditEvent(ctx, model.AuditEvent{
		ID:        id,
		RequestID: lens.RequestID,
		Stage:     stage,
		Wave:      lens.ExecutionWave,
		Seq:       seq,
		Payload:   payload,
	})
}

func (a *StoreAuditSink) ReclaimSequences(ctx context.Context, lens *LensContext) error {
	return a.store.ReclaimSequences(ctx, lens.RequestID)
}
