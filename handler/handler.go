// Package handler provides the job execution engine behind a connection.
// A Handler accepts jobs for execution, runs them through a middleware
// chain, and drives each job to exactly one terminal status. Two
// implementations are provided: Default executes jobs synchronously in
// the caller's goroutine, Pool executes them on a bounded set of worker
// goroutines.
package handler

import (
	"context"

	"github.com/loomworks/tether/id"
	"github.com/loomworks/tether/job"
)

// Handler executes jobs on behalf of a connection. Implementations must
// guarantee that every accepted job reaches exactly one terminal status,
// even on panic or cancellation.
type Handler interface {
	// HandleJob accepts a job for execution. A nil return means the job
	// was accepted; execution outcome is reported through the job's own
	// status transitions, not through this error.
	HandleJob(ctx context.Context, j *job.Job) error

	// CancelJob requests cancellation of a previously accepted job.
	// Cancellation is advisory for running jobs: the job function is
	// signalled through its context and decides when to stop.
	CancelJob(jobID id.JobID)

	// Iterate gives the handler a chance to perform periodic work.
	// Called on every supervisor tick.
	Iterate()

	// Cleanup releases handler resources. Pending jobs that have not
	// started are failed; running jobs are cancelled.
	Cleanup()
}
