package models

import "time"

// Sync modes.
const (
	SyncModeFull        = "full"
	SyncModeIncremental = "incremental"
)

// Sync outcomes.
const (
	SyncOutcomeDone         = "done"
	SyncOutcomeStoppedEarly = "stopped_early"
	SyncOutcomeInterrupted  = "interrupted"
)

// SyncResult contains the results of a calendar sync run.
type SyncResult struct {
	UserID       string     `json:"user_id"`
	UserEmail    string     `json:"user_email"`
	Mode         string     `json:"mode"`
	Outcome      string     `json:"outcome"`
	Processed    int        `json:"processed"`
	Skipped      int        `json:"skipped"`
	PagesFetched int        `json:"pages_fetched"`
	Checkpoint   *time.Time `json:"checkpoint,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
}

// CheckpointAdvanced returns true if the run moved the user's lastSyncAt.
func (r *SyncResult) CheckpointAdvanced() bool {
	return r.Checkpoint != nil
}
