// Package conn implements the compute-resource side of a job handler
// connection. A Connection polls one remote handler's inbound subfeed,
// applies ADD_JOB, CANCEL_JOB, and KEEP_ALIVE messages against the
// shared manager, and reports job lifecycle events on the handler's
// outbound subfeed.
//
// Wire job ids and local job ids are separate namespaces. The
// connection bridges them: its active table maps each handler-assigned
// id to the local job it resolved to, and every outbound event is
// addressed by the handler-assigned id.
package conn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/backoff"
	"github.com/loomworks/tether/blob"
	"github.com/loomworks/tether/cache"
	"github.com/loomworks/tether/feed"
	"github.com/loomworks/tether/job"
	"github.com/loomworks/tether/manager"
	"github.com/loomworks/tether/wire"
)

// Connection serves one remote job handler.
type Connection struct {
	handlerID string
	mgr       *manager.Manager
	feed      feed.Feed
	cache     cache.ResultCache
	blobs     blob.Store
	cfg       tether.Config
	logger    *slog.Logger
	now       func() time.Time
	backoff   backoff.Strategy

	mu            sync.Mutex
	active        map[string]*job.Job
	lastKeepAlive time.Time
	nextIndex     int
	running       bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Connection.
type Option func(*Connection)

// WithCache enables content-hash result caching.
func WithCache(c cache.ResultCache) Option {
	return func(cn *Connection) { cn.cache = c }
}

// WithBlobStore enables out-of-band storage for oversized results.
// Without one, every result is sent inline regardless of size.
func WithBlobStore(s blob.Store) Option {
	return func(cn *Connection) { cn.blobs = s }
}

// WithConfig overrides the protocol configuration.
func WithConfig(cfg tether.Config) Option {
	return func(cn *Connection) { cn.cfg = cfg }
}

// WithLogger sets the connection's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cn *Connection) { cn.logger = logger }
}

// WithClock overrides the time source. Tests use this to control
// keep-alive liveness.
func WithClock(now func() time.Time) Option {
	return func(cn *Connection) { cn.now = now }
}

// WithBackoff sets the retry strategy for inbound feed read failures.
func WithBackoff(s backoff.Strategy) Option {
	return func(cn *Connection) { cn.backoff = s }
}

// New creates a connection for the given handler id. The connection is
// considered alive from creation; the remote handler must send
// KEEP_ALIVE before the threshold elapses to stay alive.
func New(handlerID string, mgr *manager.Manager, f feed.Feed, opts ...Option) *Connection {
	c := &Connection{
		handlerID: handlerID,
		mgr:       mgr,
		feed:      f,
		cfg:       tether.DefaultConfig(),
		logger:    slog.Default(),
		now:       time.Now,
		backoff:   backoff.DefaultStrategy(),
		active:    make(map[string]*job.Job),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastKeepAlive = c.now()
	return c
}

// HandlerID returns the remote handler's wire identifier.
func (c *Connection) HandlerID() string { return c.handlerID }

// ActiveJobs returns the number of wire job ids currently mapped to
// incomplete local jobs.
func (c *Connection) ActiveJobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// IsAlive reports whether a keep-alive arrived within the threshold.
func (c *Connection) IsAlive() bool {
	c.mu.Lock()
	last := c.lastKeepAlive
	c.mu.Unlock()
	return c.now().Sub(last) <= c.cfg.KeepAliveThreshold
}

// Start launches the inbound poll loop. It returns immediately.
func (c *Connection) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	c.running = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	c.logger.Info("connection starting", slog.String("handler_id", c.handlerID))
	go c.pollLoop(ctx)

	return nil
}

// Stop halts the poll loop and cancels every job still active for this
// handler.
func (c *Connection) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	jobs := make([]*job.Job, 0, len(c.active))
	for _, j := range c.active {
		jobs = append(jobs, j)
	}
	c.mu.Unlock()

	cancel()
	<-done

	for _, j := range jobs {
		if j.Status().IsIncomplete() {
			c.mgr.Cancel(j.ID)
		}
	}

	c.logger.Info("connection stopped", slog.String("handler_id", c.handlerID))
}

// pollLoop reads the inbound subfeed one message at a time. Reads past
// the end are an idle condition; other errors back off exponentially.
func (c *Connection) pollLoop(ctx context.Context) {
	defer close(c.done)

	subfeed := feed.InboundSubfeed(c.handlerID)
	attempt := 0

	for {
		c.mu.Lock()
		index := c.nextIndex
		c.mu.Unlock()

		data, err := c.feed.At(ctx, subfeed, index)
		switch {
		case err == nil:
			attempt = 0
			c.mu.Lock()
			c.nextIndex++
			c.mu.Unlock()

			msg, derr := wire.Decode(data)
			if derr != nil {
				c.logger.Warn("dropping undecodable message",
					slog.String("handler_id", c.handlerID),
					slog.Int("index", index),
					slog.String("error", derr.Error()),
				)
				continue
			}
			if herr := c.HandleMessage(ctx, msg); herr != nil {
				c.logger.Warn("message rejected",
					slog.String("handler_id", c.handlerID),
					slog.String("type", string(msg.Type)),
					slog.String("error", herr.Error()),
				)
			}
			continue

		case errors.Is(err, tether.ErrNoSuchMessage):
			attempt = 0
			if !sleepCtx(ctx, c.cfg.PollInterval) {
				return
			}

		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return

		default:
			attempt++
			delay := c.backoff.Delay(attempt)
			c.logger.Warn("inbound feed read failed",
				slog.String("handler_id", c.handlerID),
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
				slog.String("error", err.Error()),
			)
			if !sleepCtx(ctx, delay) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// HandleMessage applies one inbound protocol message. Outbound message
// types are a protocol violation and rejected.
func (c *Connection) HandleMessage(ctx context.Context, msg *wire.Message) error {
	if !msg.Type.Inbound() {
		return fmt.Errorf("conn: unexpected outbound message type %s", msg.Type)
	}

	switch msg.Type {
	case wire.MessageAddJob:
		c.handleAddJob(ctx, msg)
	case wire.MessageCancelJob:
		c.handleCancelJob(msg)
	case wire.MessageKeepAlive:
		c.mu.Lock()
		c.lastKeepAlive = c.now()
		c.mu.Unlock()
	}

	return nil
}

func (c *Connection) handleAddJob(ctx context.Context, msg *wire.Message) {
	if msg.Job == nil {
		c.logger.Warn("ADD_JOB without job spec",
			slog.String("handler_id", c.handlerID),
			slog.String("wire_job_id", msg.JobID),
		)
		return
	}

	c.mu.Lock()
	_, dup := c.active[msg.JobID]
	c.mu.Unlock()
	if dup {
		c.logger.Warn("ADD_JOB with duplicate job id, ignoring",
			slog.String("handler_id", c.handlerID),
			slog.String("wire_job_id", msg.JobID),
		)
		return
	}

	// Cache hit short-circuits the manager entirely: the stored
	// JOB_FINISHED record is replayed with only the job id rewritten.
	if c.cache != nil && !msg.Job.ForceRun {
		cached, err := c.cache.Lookup(ctx, msg.Job.Hash())
		if err != nil {
			c.logger.Warn("cache lookup failed, treating as miss",
				slog.String("wire_job_id", msg.JobID),
				slog.String("error", err.Error()),
			)
		} else if cached != nil && cached.Type == wire.MessageJobFinished {
			c.logger.Info("cache hit",
				slog.String("wire_job_id", msg.JobID),
				slog.String("hash", msg.Job.Hash().String()),
			)
			c.emit(ctx, cached.WithJobID(msg.JobID))
			return
		}
	}

	j, created, err := c.mgr.AddJob(msg.Job)
	if err != nil {
		label := msg.Job.Label
		if label == "" {
			label = msg.Job.Name
		}
		c.emit(ctx, wire.NewJobError(msg.JobID, label, c.now(), job.RuntimeInfo{}, err.Error()))
		return
	}

	c.mu.Lock()
	c.active[msg.JobID] = j
	c.mu.Unlock()

	if !created {
		c.logger.Debug("joined in-flight job",
			slog.String("wire_job_id", msg.JobID),
			slog.String("job_id", j.ID.String()),
		)
	}

	// Subscription replays the current status synchronously, so a
	// handler that asked for an in-flight job still gets an immediate
	// event for where the job is now.
	wireID := msg.JobID
	j.OnStatusChanged(func(j *job.Job, status job.Status) {
		c.onStatus(wireID, j, status)
	})
}

func (c *Connection) handleCancelJob(msg *wire.Message) {
	c.mu.Lock()
	j, ok := c.active[msg.JobID]
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("CANCEL_JOB for unknown job id, ignoring",
			slog.String("handler_id", c.handlerID),
			slog.String("wire_job_id", msg.JobID),
		)
		return
	}

	c.mgr.Cancel(j.ID)
}

// onStatus translates a local job transition into an outbound event.
// Runs inside the job's notification lock; it must not transition jobs.
func (c *Connection) onStatus(wireID string, j *job.Job, status job.Status) {
	ctx := context.Background()

	switch status {
	case job.StatusQueued:
		c.emit(ctx, wire.NewJobQueued(wireID, j.Label, c.now()))

	case job.StatusRunning:
		c.emit(ctx, wire.NewJobStarted(wireID, j.Label, c.now()))

	case job.StatusFinished:
		c.finishJob(ctx, wireID, j)

	case job.StatusError:
		exception := "unknown error"
		if err := j.Err(); err != nil {
			exception = err.Error()
		}
		c.emit(ctx, wire.NewJobError(wireID, j.Label, c.now(), j.Runtime(), exception))
		c.removeActive(wireID)
	}
}

// finishJob emits JOB_FINISHED, offloading oversized results to the
// blob store, and records the event in the result cache. Errored jobs
// never reach the cache.
func (c *Connection) finishJob(ctx context.Context, wireID string, j *job.Job) {
	result, _ := j.Result()

	var inline []byte
	var resultURI string
	if len(result) > c.cfg.InlineResultLimit && c.blobs != nil {
		uri, err := c.blobs.Put(ctx, result)
		if err != nil {
			c.logger.Warn("blob store put failed, sending result inline",
				slog.String("wire_job_id", wireID),
				slog.String("error", err.Error()),
			)
			inline = result
		} else {
			resultURI = uri
		}
	} else {
		inline = result
	}

	msg := wire.NewJobFinished(wireID, j.Label, c.now(), j.Runtime(), inline, resultURI)
	c.emit(ctx, msg)

	if c.cache != nil {
		if err := c.cache.Store(ctx, j.Hash, msg); err != nil {
			c.logger.Warn("cache store failed",
				slog.String("hash", j.Hash.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	c.removeActive(wireID)
}

func (c *Connection) removeActive(wireID string) {
	c.mu.Lock()
	delete(c.active, wireID)
	c.mu.Unlock()
}

// emit appends one outbound event. Append failures are logged; the
// job's local state is already authoritative at this point.
func (c *Connection) emit(ctx context.Context, m *wire.Message) {
	data, err := wire.Encode(m)
	if err != nil {
		c.logger.Warn("outbound encode failed",
			slog.String("type", string(m.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if _, err := c.feed.Append(ctx, feed.OutboundSubfeed(c.handlerID), data); err != nil {
		c.logger.Warn("outbound append failed",
			slog.String("type", string(m.Type)),
			slog.String("wire_job_id", m.JobID),
			slog.String("error", err.Error()),
		)
	}
}
