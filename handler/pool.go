package handler

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/id"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/middleware"
)

// Pool executes jobs on a fixed set of worker goroutines. HandleJob
// returns as soon as the job is queued to a worker; outcomes are
// reported through job status transitions.
type Pool struct {
	mw          middleware.Middleware
	logger      *slog.Logger
	concurrency int
	queueDepth  int
	limiter     *rate.Limiter

	jobs   chan *job.Job
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool

	activeMu sync.Mutex
	active   map[id.JobID]*job.Job
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the number of worker goroutines. Default 10.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithQueueDepth sets the submission buffer size. Default 64.
func WithQueueDepth(n int) PoolOption {
	return func(p *Pool) { p.queueDepth = n }
}

// WithRateLimit throttles job submission. Zero limit means unlimited.
func WithRateLimit(limit rate.Limit, burst int) PoolOption {
	return func(p *Pool) {
		if limit > 0 {
			p.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// WithMiddleware sets the middleware chain applied around each job.
func WithMiddleware(mws ...middleware.Middleware) PoolOption {
	return func(p *Pool) { p.mw = middleware.Chain(mws...) }
}

// WithLogger sets the pool's logger.
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// NewPool creates a worker pool handler and starts its workers.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		mw:          middleware.Chain(),
		logger:      slog.Default(),
		concurrency: 10,
		queueDepth:  64,
		stopCh:      make(chan struct{}),
		active:      make(map[id.JobID]*job.Job),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.jobs = make(chan *job.Job, p.queueDepth)
	p.running = true

	for range p.concurrency {
		p.wg.Add(1)
		go p.workLoop()
	}

	return p
}

var _ Handler = (*Pool)(nil)

// HandleJob queues the job for execution. It blocks while the rate
// limiter or a full submission buffer requires it, and fails with
// ErrHandlerClosed after Cleanup.
func (p *Pool) HandleJob(ctx context.Context, j *job.Job) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return tether.ErrHandlerClosed
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	// Track from submission time so queued jobs are cancellable too.
	p.activeMu.Lock()
	p.active[j.ID] = j
	p.activeMu.Unlock()

	select {
	case p.jobs <- j:
		return nil
	case <-p.stopCh:
		p.untrack(j.ID)
		return tether.ErrHandlerClosed
	case <-ctx.Done():
		p.untrack(j.ID)
		return ctx.Err()
	}
}

func (p *Pool) untrack(jobID id.JobID) {
	p.activeMu.Lock()
	delete(p.active, jobID)
	p.activeMu.Unlock()
}

// CancelJob cancels a queued or running job. A still-queued job fails
// immediately; a running job is signalled through its context.
func (p *Pool) CancelJob(jobID id.JobID) {
	p.activeMu.Lock()
	j, ok := p.active[jobID]
	p.activeMu.Unlock()

	if !ok {
		p.logger.Debug("cancel for job not active", slog.String("job_id", jobID.String()))
		return
	}
	j.Cancel()
}

// Iterate is a no-op; workers poll the submission channel themselves.
func (p *Pool) Iterate() {}

// Cleanup stops accepting jobs, cancels active ones, and waits for the
// workers to drain.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)

	p.activeMu.Lock()
	jobs := make([]*job.Job, 0, len(p.active))
	for _, j := range p.active {
		jobs = append(jobs, j)
	}
	p.activeMu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}

	p.wg.Wait()

	// Fail anything still queued so no accepted job is left dangling.
	for {
		select {
		case j := <-p.jobs:
			j.Fail(tether.ErrHandlerClosed)
		default:
			return
		}
	}
}

// workLoop is run by each worker goroutine.
func (p *Pool) workLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case j := <-p.jobs:
			p.execute(j)
		}
	}
}

func (p *Pool) execute(j *job.Job) {
	defer p.untrack(j.ID)

	if j.Status().IsComplete() {
		// Cancelled while queued.
		return
	}

	runJob(context.Background(), j, p.mw, p.logger)
}
