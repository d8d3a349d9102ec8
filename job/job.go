package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/id"
)

// Func is a type-erased job function. It receives codec-encoded arguments
// and returns a codec-encoded result. The typed Definition[A, R] is
// converted to a Func at registration time.
type Func func(ctx context.Context, args []byte) ([]byte, error)

// StatusCallback observes a job status transition. Callbacks registered
// via OnStatusChanged run synchronously, once per transition, in
// registration order, immediately after the status mutates. They may fire
// from whatever goroutine completes the job.
type StatusCallback func(j *Job, status Status)

// Job is a single unit of work owned by the manager that created it.
// Connections hold jobs by reference while active but never own them.
//
// All state access is goroutine-safe. Status transitions are monotonic;
// a second terminal transition attempt is a logged no-op.
type Job struct {
	// ID is the locally assigned identity. It is a different namespace
	// from the handler-assigned wire id, which connections map to it.
	ID id.JobID

	// Name and Version identify the registered function.
	Name    string
	Version string

	// Args holds the codec-encoded arguments.
	Args []byte

	// Label is a human-readable description used in outbound events.
	Label string

	// ForceRun bypasses the cache lookup for this job. The result is
	// still written to the cache on success for future reuse.
	ForceRun bool

	// Hash is the content address, computed once at creation.
	Hash Hash

	// Timeout bounds execution time when non-zero. Enforced by the
	// timeout middleware, not by Execute itself.
	Timeout time.Duration

	fn     Func
	logger *slog.Logger
	now    func() time.Time

	// notifyMu serializes transitions with callback delivery so observers
	// see transitions in order. mu guards plain state reads.
	notifyMu sync.Mutex
	mu       sync.Mutex

	status    Status
	result    []byte
	execErr   error
	runtime   RuntimeInfo
	callbacks []StatusCallback
	cancel    context.CancelFunc
}

// Option configures a Job at creation.
type Option func(*Job)

// WithLabel sets the human-readable label. Defaults to the function name.
func WithLabel(label string) Option {
	return func(j *Job) { j.Label = label }
}

// WithForceRun marks the job to bypass cache lookup.
func WithForceRun() Option {
	return func(j *Job) { j.ForceRun = true }
}

// WithTimeout bounds the job's execution time. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) { j.Timeout = d }
}

// WithLogger sets the logger for transition warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) { j.logger = logger }
}

// WithClock overrides the time source. Tests use this to control
// timestamps in runtime info.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// New creates a queued job for the given function identity and encoded
// arguments. The hash is computed once here and never changes.
func New(name, version string, args []byte, fn Func, opts ...Option) *Job {
	j := &Job{
		ID:      id.NewJobID(),
		Name:    name,
		Version: version,
		Args:    args,
		Label:   name,
		Hash:    ComputeHash(name, version, args),
		fn:      fn,
		logger:  slog.Default(),
		now:     time.Now,
		status:  StatusQueued,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.runtime.QueuedAt = j.now().UTC()

	return j
}

// Status returns the current lifecycle status.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.status
}

// Result returns the encoded result. The boolean is true only when the job
// is finished.
func (j *Job) Result() ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusFinished {
		return nil, false
	}

	return j.result, true
}

// Err returns the captured execution error, or nil unless the job is in
// the error status.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.status != StatusError {
		return nil
	}

	return j.execErr
}

// Runtime returns a copy of the job's timing metadata.
func (j *Job) Runtime() RuntimeInfo {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.runtime
}

// OnStatusChanged registers a status observer. The callback is first
// invoked synchronously with the job's current status (late subscribers
// must still observe terminal states), then once per subsequent
// transition.
func (j *Job) OnStatusChanged(cb StatusCallback) {
	j.notifyMu.Lock()
	defer j.notifyMu.Unlock()

	j.mu.Lock()
	j.callbacks = append(j.callbacks, cb)
	current := j.status
	j.mu.Unlock()

	cb(j, current)
}

// Start transitions the job from queued to running. Handlers call this
// immediately before Execute.
func (j *Job) Start() error {
	return j.transition(StatusRunning, func() {
		started := j.now().UTC()
		j.runtime.StartedAt = &started
	})
}

// Execute runs the job's function with its arguments. On return the job is
// finished with a result; on failure (including a panic in the function)
// it is in the error status with the failure captured. If the job is still
// queued, Execute transitions it to running first.
//
// The returned error mirrors the captured execution error so callers such
// as middleware can observe it; it is never re-raised to the requester.
func (j *Job) Execute(ctx context.Context) error {
	if j.Status() == StatusQueued {
		if err := j.Start(); err != nil {
			return err
		}
	}

	result, err := j.invoke(ctx)
	if err != nil {
		j.Fail(err)

		return err
	}

	j.Finish(result)

	return nil
}

// invoke calls the job function, converting panics into errors so a
// misbehaving function never crashes the executing handler.
func (j *Job) invoke(ctx context.Context) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", j.Name, r)
		}
	}()

	if j.fn == nil {
		return nil, fmt.Errorf("%w: %s@%s", tether.ErrUnknownFunction, j.Name, j.Version)
	}

	return j.fn(ctx, j.Args)
}

// Finish transitions the job to finished with the given encoded result.
// A no-op with a logged warning if the job is already terminal, such as
// when a cancellation won the race.
func (j *Job) Finish(result []byte) {
	err := j.transition(StatusFinished, func() {
		j.result = result
		j.completeRuntime()
	})
	if err != nil {
		j.logger.Warn("dropping finish for terminal job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
		)
	}
}

// Fail transitions the job to the error status with the given failure.
// A no-op with a logged warning if the job is already terminal.
func (j *Job) Fail(execErr error) {
	err := j.transition(StatusError, func() {
		j.execErr = execErr
		j.completeRuntime()
	})
	if err != nil {
		j.logger.Warn("dropping failure for terminal job",
			slog.String("job_id", j.ID.String()),
			slog.String("job_name", j.Name),
			slog.String("error", execErr.Error()),
		)
	}
}

// Cancel requests cancellation. A queued job fails immediately with
// ErrJobCancelled. For a running job the cancellation is advisory: the
// execution substrate is asked to stop, and whichever transition happens
// first wins, natural completion or the cancellation-induced failure.
// Terminal jobs ignore Cancel.
func (j *Job) Cancel() {
	j.mu.Lock()
	status := j.status
	cancel := j.cancel
	j.mu.Unlock()

	switch {
	case status.IsComplete():
		// Nothing to do.
	case status == StatusRunning:
		if cancel != nil {
			cancel()
		}
	default:
		j.Fail(tether.ErrJobCancelled)
	}
}

// SetCancel installs the cancellation hook for the executing handler.
// Handlers that run jobs under a cancellable context install the context's
// cancel function here before Execute and clear it after.
func (j *Job) SetCancel(cancel context.CancelFunc) {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()
}

// completeRuntime stamps terminal timing fields. Caller holds j.mu.
func (j *Job) completeRuntime() {
	finished := j.now().UTC()
	j.runtime.FinishedAt = &finished
	if j.runtime.StartedAt != nil {
		j.runtime.ElapsedMs = finished.Sub(*j.runtime.StartedAt).Milliseconds()
	}
}

// transition validates the move, applies the mutation, and notifies
// callbacks in registration order. Transitions and deliveries are
// serialized by notifyMu so no observer sees them out of order.
func (j *Job) transition(to Status, mutate func()) error {
	j.notifyMu.Lock()
	defer j.notifyMu.Unlock()

	j.mu.Lock()
	if !j.status.CanTransition(to) {
		from := j.status
		j.mu.Unlock()

		return fmt.Errorf("%w: %s → %s", tether.ErrInvalidTransition, from, to)
	}
	j.status = to
	if mutate != nil {
		mutate()
	}
	callbacks := make([]StatusCallback, len(j.callbacks))
	copy(callbacks, j.callbacks)
	j.mu.Unlock()

	for _, cb := range callbacks {
		cb(j, to)
	}

	return nil
}
