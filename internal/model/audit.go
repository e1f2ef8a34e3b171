package model

// Audit stages emitted during a run.
const (
	StageRequest        = "request"
	StageExecution      = "execution"
	StageFinalExecution = "final_execution"
)

// AuditEvent is one persisted audit record. ID is content-addressed
// (AuditEventID), which makes audit writes idempotent: replaying a run
// stage produces the same ID and the duplicate insert is a no-op.
type AuditEvent struct {
	ID        string         `json:"id"`
	RequestID string         `json:"request_id"`
	Stage     string         `json:"stage"`
	Wave      int            `json:"wave"`
	Seq       int64          `json:"seq"`
	Payload   map[string]any `json:"payload,omitempty"`
}
