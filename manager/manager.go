// Package manager owns the jobs running on a compute resource. It is
// the single authority for job identity and content-hash deduplication:
// every connection submits jobs through one shared Manager, so a hash
// never executes more than once concurrently regardless of how many
// remote handlers asked for it.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/handler"
	"github.com/loomworks/tether/id"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/wire"
)

// Manager is the job arena for one compute resource. Jobs are created
// here, deduplicated by content hash while incomplete, and dispatched to
// the configured handler on each Iterate tick.
type Manager struct {
	registry   *job.Registry
	handler    handler.Handler
	logger     *slog.Logger
	jobTimeout time.Duration

	mu     sync.Mutex
	jobs   map[id.JobID]*job.Job
	byHash map[job.Hash]*job.Job
	queued []*job.Job
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithJobTimeout applies a default execution timeout to every created
// job. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(m *Manager) { m.jobTimeout = d }
}

// New creates a Manager dispatching to the given handler.
func New(registry *job.Registry, h handler.Handler, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		handler:  h,
		logger:   slog.Default(),
		jobs:     make(map[id.JobID]*job.Job),
		byHash:   make(map[job.Hash]*job.Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddJob creates a job from the spec, or joins an existing incomplete
// job with the same content hash. The second return value reports
// whether a new job was created. Force-run specs never join.
//
// New jobs start QUEUED and are dispatched on the next Iterate tick, so
// a caller subscribing to the returned job immediately observes the
// full QUEUED, RUNNING, terminal sequence.
func (m *Manager) AddJob(spec *wire.JobSpec, opts ...job.Option) (*job.Job, bool, error) {
	fn, ok := m.registry.Get(spec.Name, spec.Version)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s@%s", tether.ErrUnknownFunction, spec.Name, spec.Version)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, tether.ErrHandlerClosed
	}

	hash := spec.Hash()
	if !spec.ForceRun {
		if existing, found := m.byHash[hash]; found && existing.Status().IsIncomplete() {
			m.logger.Debug("joining existing job",
				slog.String("job_id", existing.ID.String()),
				slog.String("hash", string(hash)),
			)
			return existing, false, nil
		}
	}

	jobOpts := []job.Option{job.WithLogger(m.logger)}
	if spec.Label != "" {
		jobOpts = append(jobOpts, job.WithLabel(spec.Label))
	}
	if spec.ForceRun {
		jobOpts = append(jobOpts, job.WithForceRun())
	}
	if m.jobTimeout > 0 {
		jobOpts = append(jobOpts, job.WithTimeout(m.jobTimeout))
	}
	jobOpts = append(jobOpts, opts...)

	j := job.New(spec.Name, spec.Version, spec.Args, fn, jobOpts...)
	m.jobs[j.ID] = j
	m.byHash[hash] = j
	m.queued = append(m.queued, j)

	// Terminal jobs leave the arena: the hash index so a later
	// submission of the same hash creates a fresh run (cache hits are
	// decided upstream), and the id index so a long-lived resource does
	// not retain args and result bytes for every job it ever ran.
	// Connections keep their own reference while emitting events.
	j.OnStatusChanged(func(done *job.Job, status job.Status) {
		if !status.IsComplete() {
			return
		}
		m.mu.Lock()
		delete(m.jobs, done.ID)
		if m.byHash[done.Hash] == done {
			delete(m.byHash, done.Hash)
		}
		m.mu.Unlock()
	})

	m.logger.Info("job added",
		slog.String("job_id", j.ID.String()),
		slog.String("job_name", j.Name),
		slog.String("hash", string(hash)),
	)

	return j, true, nil
}

// Job returns the job with the given local id.
func (m *Manager) Job(jobID id.JobID) (*job.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	return j, ok
}

// Cancel requests cancellation of a managed job. It reports whether the
// id was known.
func (m *Manager) Cancel(jobID id.JobID) bool {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	m.mu.Unlock()

	if !ok {
		return false
	}
	j.Cancel()
	m.handler.CancelJob(jobID)
	return true
}

// Iterate dispatches queued jobs to the handler and ticks it. Called
// periodically by the resource supervisor.
func (m *Manager) Iterate(ctx context.Context) {
	m.mu.Lock()
	pending := m.queued
	m.queued = nil
	m.mu.Unlock()

	for _, j := range pending {
		if j.Status().IsComplete() {
			// Cancelled before dispatch.
			continue
		}
		if err := m.handler.HandleJob(ctx, j); err != nil {
			m.logger.Warn("handler rejected job",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
			j.Fail(err)
		}
	}

	m.handler.Iterate()
}

// Close stops the handler and fails every incomplete job.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	jobs := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	m.handler.Cleanup()

	for _, j := range jobs {
		if j.Status().IsIncomplete() {
			j.Cancel()
		}
	}
}
