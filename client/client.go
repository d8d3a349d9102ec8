// Package client implements the remote job handler side of the
// protocol: the process that submits jobs to a compute resource and
// consumes its lifecycle events.
//
// A Client announces itself on the registry subfeed, writes ADD_JOB,
// CANCEL_JOB, and KEEP_ALIVE messages to its inbound subfeed, and polls
// its outbound subfeed for events, routing each one to the Handle that
// submitted the job.
//
// Usage:
//
//	c, err := client.Connect(ctx, f)
//	defer c.Close()
//
//	h, err := c.Call(ctx, "sum-of-squares", "0.1.0", []int{1, 2, 3})
//	final, err := h.Wait(ctx)
//	result, err := c.Result(ctx, final)
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/backoff"
	"github.com/loomworks/tether/blob"
	"github.com/loomworks/tether/codec"
	"github.com/loomworks/tether/feed"
	"github.com/loomworks/tether/id"
	"github.com/loomworks/tether/wire"
)

// Client is a remote job handler attached to one feed.
type Client struct {
	handlerID string
	feed      feed.Feed
	codec     codec.Codec
	blobs     blob.Store
	cfg       tether.Config
	logger    *slog.Logger
	now       func() time.Time
	backoff   backoff.Strategy

	keepAliveInterval time.Duration

	mu        sync.Mutex
	pending   map[string]*Handle
	nextIndex int
	closed    bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the argument/result serializer. Defaults to msgpack.
func WithCodec(c codec.Codec) Option {
	return func(cl *Client) { cl.codec = c }
}

// WithBlobStore enables fetching of offloaded results.
func WithBlobStore(s blob.Store) Option {
	return func(cl *Client) { cl.blobs = s }
}

// WithConfig overrides the protocol configuration.
func WithConfig(cfg tether.Config) Option {
	return func(cl *Client) { cl.cfg = cfg }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// WithKeepAliveInterval overrides how often KEEP_ALIVE is sent. Must be
// comfortably under the resource's keep-alive threshold.
func WithKeepAliveInterval(d time.Duration) Option {
	return func(cl *Client) { cl.keepAliveInterval = d }
}

// WithBackoff sets the retry strategy for outbound feed read failures.
func WithBackoff(s backoff.Strategy) Option {
	return func(cl *Client) { cl.backoff = s }
}

// Connect announces a new handler on the feed and starts the keep-alive
// and event loops.
func Connect(ctx context.Context, f feed.Feed, opts ...Option) (*Client, error) {
	c := &Client{
		handlerID: id.NewConnectionID().String(),
		feed:      f,
		codec:     codec.Default(),
		cfg:       tether.DefaultConfig(),
		logger:    slog.Default(),
		now:       time.Now,
		backoff:   backoff.DefaultStrategy(),
		pending:   make(map[string]*Handle),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.keepAliveInterval <= 0 {
		c.keepAliveInterval = c.cfg.KeepAliveThreshold / 4
	}

	data, err := wire.EncodeAnnouncement(&wire.Announcement{
		HandlerID: c.handlerID,
		Timestamp: c.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	if _, err := f.Append(ctx, feed.RegistrySubfeed, data); err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.run(loopCtx)

	c.logger.Info("handler connected", slog.String("handler_id", c.handlerID))
	return c, nil
}

// HandlerID returns this handler's wire identifier.
func (c *Client) HandlerID() string { return c.handlerID }

// Close stops the keep-alive and event loops. Pending handles are
// failed with ErrConnectionClosed.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	handles := make([]*Handle, 0, len(c.pending))
	for _, h := range c.pending {
		handles = append(handles, h)
	}
	c.pending = make(map[string]*Handle)
	c.mu.Unlock()

	c.cancel()
	<-c.done

	for _, h := range handles {
		h.fail(tether.ErrConnectionClosed)
	}
}

// Submit sends an ADD_JOB for the given spec and returns a Handle for
// its lifecycle events.
func (c *Client) Submit(ctx context.Context, spec *wire.JobSpec) (*Handle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, tether.ErrConnectionClosed
	}
	c.mu.Unlock()

	h := newHandle(id.NewJobID().String(), spec)

	msg := wire.NewAddJob(h.wireID, spec, c.now())
	if err := c.send(ctx, msg); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pending[h.wireID] = h
	c.mu.Unlock()

	return h, nil
}

// Call encodes args with the client's codec and submits the job.
func (c *Client) Call(ctx context.Context, name, version string, args any, opts ...SubmitOption) (*Handle, error) {
	encoded, err := c.codec.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("client: encode args for %s@%s: %w", name, version, err)
	}

	spec := &wire.JobSpec{Name: name, Version: version, Args: encoded}
	for _, opt := range opts {
		opt(spec)
	}

	return c.Submit(ctx, spec)
}

// SubmitOption adjusts a job spec before submission.
type SubmitOption func(*wire.JobSpec)

// WithLabel sets the job's human-readable label.
func WithLabel(label string) SubmitOption {
	return func(s *wire.JobSpec) { s.Label = label }
}

// WithForceRun bypasses the resource's result cache.
func WithForceRun() SubmitOption {
	return func(s *wire.JobSpec) { s.ForceRun = true }
}

// Cancel sends a CANCEL_JOB for the handle's job.
func (c *Client) Cancel(ctx context.Context, h *Handle) error {
	return c.send(ctx, wire.NewCancelJob(h.wireID, c.now()))
}

// Result returns the job's decoded-result bytes from a terminal
// JOB_FINISHED message, fetching from the blob store when the result
// was offloaded.
func (c *Client) Result(ctx context.Context, final *wire.Message) ([]byte, error) {
	if final.Type != wire.MessageJobFinished {
		return nil, fmt.Errorf("client: no result on %s message", final.Type)
	}
	if final.ResultURI == "" {
		return final.Result, nil
	}
	if c.blobs == nil {
		return nil, fmt.Errorf("client: result %s is offloaded and no blob store is configured", final.ResultURI)
	}
	return c.blobs.Get(ctx, final.ResultURI)
}

// send encodes and appends one message to the inbound subfeed.
func (c *Client) send(ctx context.Context, m *wire.Message) error {
	data, err := wire.Encode(m)
	if err != nil {
		return fmt.Errorf("client: send %s: %w", m.Type, err)
	}
	if _, err := c.feed.Append(ctx, feed.InboundSubfeed(c.handlerID), data); err != nil {
		return fmt.Errorf("client: send %s: %w", m.Type, err)
	}
	return nil
}
