package handler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/loomworks/tether/id"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/middleware"
)

// Default executes each job synchronously in the caller's goroutine.
// HandleJob does not return until the job is terminal. Cancellation from
// another goroutine is supported while the job runs.
type Default struct {
	mw     middleware.Middleware
	logger *slog.Logger

	activeMu sync.Mutex
	active   map[id.JobID]*job.Job
}

// DefaultOption configures a Default handler.
type DefaultOption func(*Default)

// WithDefaultLogger sets the handler's logger.
func WithDefaultLogger(logger *slog.Logger) DefaultOption {
	return func(d *Default) { d.logger = logger }
}

// WithDefaultMiddleware sets the middleware chain applied around each job.
func WithDefaultMiddleware(mws ...middleware.Middleware) DefaultOption {
	return func(d *Default) { d.mw = middleware.Chain(mws...) }
}

// NewDefault creates a synchronous handler.
func NewDefault(opts ...DefaultOption) *Default {
	d := &Default{
		mw:     middleware.Chain(),
		logger: slog.Default(),
		active: make(map[id.JobID]*job.Job),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ Handler = (*Default)(nil)

// HandleJob runs the job through the middleware chain to completion.
// The returned error is always nil; execution failures are captured in
// the job's terminal status.
func (d *Default) HandleJob(ctx context.Context, j *job.Job) error {
	d.activeMu.Lock()
	d.active[j.ID] = j
	d.activeMu.Unlock()

	defer func() {
		d.activeMu.Lock()
		delete(d.active, j.ID)
		d.activeMu.Unlock()
	}()

	runJob(ctx, j, d.mw, d.logger)
	return nil
}

// CancelJob cancels the job if it is currently executing.
func (d *Default) CancelJob(jobID id.JobID) {
	d.activeMu.Lock()
	j, ok := d.active[jobID]
	d.activeMu.Unlock()

	if !ok {
		d.logger.Debug("cancel for job not active", slog.String("job_id", jobID.String()))
		return
	}
	j.Cancel()
}

// Iterate is a no-op for the synchronous handler.
func (d *Default) Iterate() {}

// Cleanup cancels any jobs still executing.
func (d *Default) Cleanup() {
	d.activeMu.Lock()
	jobs := make([]*job.Job, 0, len(d.active))
	for _, j := range d.active {
		jobs = append(jobs, j)
	}
	d.activeMu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}
}

// runJob executes one job through the middleware chain and guarantees a
// terminal status afterwards. The terminal handler is the job's own
// Execute, which records success and failure itself; the post-chain
// check covers errors synthesized by middleware (panic recovery,
// deadline wrapping) after the job function returned.
func runJob(ctx context.Context, j *job.Job, mw middleware.Middleware, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.SetCancel(cancel)

	err := mw(ctx, j, func(ctx context.Context) error {
		return j.Execute(ctx)
	})

	if err != nil && j.Status().IsIncomplete() {
		logger.Warn("middleware error after execution",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		j.Fail(err)
	}
}
