package models

import "time"

// RunState is the externally visible progress of the current or last run.
type RunState struct {
	// RunID identifies the run; empty before the first run.
	RunID string `json:"run_id,omitempty"`
	// Running is true while a run is in flight.
	Running bool `json:"running"`
	// ActiveStage is the stage currently dwelling. Nil unless Running.
	ActiveStage *StageID `json:"active_stage,omitempty"`
	// CompletedStages grows in stage order during a run.
	CompletedStages []StageID `json:"completed_stages"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
	// LastError is the failure of the last finished run, if any.
	LastError string `json:"last_error,omitempty"`
}

// Clone returns a deep copy safe to hand to readers.
func (r RunState) Clone() RunState {
	out := r
	if r.ActiveStage != nil {
		s := *r.ActiveStage
		out.ActiveStage = &s
	}
	out.CompletedStages = append([]StageID{}, r.CompletedStages...)
	return out
}

// IsCompleted reports whether the stage finished in the current run.
func (r RunState) IsCompleted(stage StageID) bool {
	for _, s := range r.CompletedStages {
		if s == stage {
			return true
		}
	}
	return false
}

// RunResult is the body returned by the backend's run endpoint.
type RunResult struct {
	// Logs is the full replacement log, newest first.
	Logs []LogEntry `json:"logs"`
	// Status is an optional snapshot; the status endpoint takes precedence.
	Status Status `json:"status,omitempty"`
	// ExecutionMS is the backend-side duration of the run.
	ExecutionMS int64 `json:"execution_ms"`
}
