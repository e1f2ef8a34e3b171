package model

// Status summarizes the outcome of one clockwork run.
type Status string

const (
	StatusUnknown    Status = ""
	StatusInProgress Status = "in_progress"
	StatusSuccess    Status = "success"
	StatusWarning    Status = "warning"
	StatusFatal      Status = "fatal"
)

// OperationResult accumulates the outcome of a run.
//
// Fatal and Finished are separate on purpose: a failing run is marked
// fatal first, audited, and only then finished, so post-processing (audit,
// sequence reclamation) still sees the in-flight state.
type OperationResult struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Fatal    bool   `json:"fatal,omitempty"`
	Finished bool   `json:"finished,omitempty"`

	// BackgroundTaskID references the spawned continuation task when the
	// run handed remaining work off.
	BackgroundTaskID string `json:"background_task_id,omitempty"`

	// Warnings are non-fatal notes surfaced to the caller, including
	// recorded concurrency conflicts deferred to the resolver.
	Warnings []string `json:"warnings,omitempty"`
}

// RecordFatal marks the run failed without finishing it.
func (r *OperationResult) RecordFatal(err error) {
	r.Status = StatusFatal
	r.Fatal = true
	if err != nil {
		r.Message = err.Error()
	}
}

// RecordInProgress marks the run as continuing in the background.
func (r *OperationResult) RecordInProgress(taskID string) {
	r.Status = StatusInProgress
	r.BackgroundTaskID = taskID
}

// RecordSuccess finishes the run. Accumulated warnings downgrade the
// status to warning instead of success.
func (r *OperationResult) RecordSuccess() {
	r.Finished = true
	if len(r.Warnings) > 0 {
		r.Status = StatusWarning
		return
	}
	r.Status = StatusSuccess
}

// AddWarning appends a non-fatal note.
func (r *OperationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
