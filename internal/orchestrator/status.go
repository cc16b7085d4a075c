package orchestrator

import "time"

// BuildStatus is a point-in-time snapshot of the current or most recent
// build. Safe to read concurrently with an in-flight build via
// GetBuildStatus.
type BuildStatus struct {
	IsSuccessful   bool      `json:"is_successful"`
	SucceededUnits int       `json:"succeeded_units"`
	FailedUnits    int       `json:"failed_units"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	StartTime      time.Time `json:"start_time"`
	CurrentStep    string    `json:"current_step"`
}
