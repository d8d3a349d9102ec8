package job

// Status represents the lifecycle state of a job.
//
// Transitions are monotonic along pending → queued → running →
// {finished | error}. Finished and error are terminal; no transition
// ever moves backward.
type Status string

const (
	// StatusPending means the job was announced remotely but is not yet
	// queued locally. Local jobs are created directly in StatusQueued.
	StatusPending Status = "pending"
	// StatusQueued means the job is accepted and waiting to run.
	StatusQueued Status = "queued"
	// StatusRunning means the job is executing.
	StatusRunning Status = "running"
	// StatusFinished means the job completed successfully and its result
	// is available.
	StatusFinished Status = "finished"
	// StatusError means the job completed with a failure and its error
	// is available.
	StatusError Status = "error"
)

// statusRank orders statuses along the monotonic transition chain.
// Terminal statuses share the highest rank so neither can replace the other.
var statusRank = map[Status]int{
	StatusPending:  0,
	StatusQueued:   1,
	StatusRunning:  2,
	StatusFinished: 3,
	StatusError:    3,
}

// IsComplete reports whether s is a terminal status (finished or error).
func (s Status) IsComplete() bool {
	return s == StatusFinished || s == StatusError
}

// IsIncomplete reports whether s is an accepted, not-yet-terminal status.
func (s Status) IsIncomplete() bool {
	return s == StatusQueued || s == StatusRunning
}

// IsPrerun reports whether s precedes execution.
func (s Status) IsPrerun() bool {
	return s == StatusPending || s == StatusQueued
}

// CanTransition reports whether moving from s to next respects the
// monotonic chain.
func (s Status) CanTransition(next Status) bool {
	if s.IsComplete() {
		return false
	}

	return statusRank[next] > statusRank[s]
}
