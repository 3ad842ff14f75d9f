package runstate

import "time"

// State is the lifecycle state of a chunk retrieval job.
//
// NOTE: These values are persisted in job.json and are part of the stable
// on-disk contract.
type State string

const (
	StateQueued   State = "queued"
	StateRunning  State = "running"
	StateSuccess  State = "success"
	StateFailed   State = "failed"
	StateTimedOut State = "timed_out"
	StateSkipped  State = "skipped"
)

// Record is the persistent run record written to job.json inside a chunk's
// output directory.
//
// Records are informational: the completion marker file remains the sole
// source of truth for resume decisions. The schema is designed for
// backward-compatible extension (additive fields).
type Record struct {
	JobID       string `json:"job_id"`
	RunID       string `json:"run_id,omitempty"`
	State       State  `json:"state"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	ControlFile string `json:"control_file,omitempty"`
	LogPath     string `json:"log_path,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	PID         int    `json:"pid,omitempty"`
	Message     string `json:"message,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}
