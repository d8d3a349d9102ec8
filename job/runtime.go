package job

import "time"

// RuntimeInfo carries timing metadata for a job. Fields are populated as
// the job progresses: QueuedAt at creation, StartedAt on the transition to
// running, FinishedAt and ElapsedMs on the terminal transition.
type RuntimeInfo struct {
	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ElapsedMs  int64      `json:"elapsed_ms,omitempty"`
}
