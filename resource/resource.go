// Package resource runs a compute resource: the long-lived process that
// watches for remote job handler announcements, serves each one through
// a dedicated connection, and drives the shared job manager.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/conn"
	"github.com/loomworks/tether/feed"
	"github.com/loomworks/tether/manager"
	"github.com/loomworks/tether/wire"
)

// Announce appends a handler announcement to the registry subfeed.
// Remote handler clients call this once at startup.
func Announce(ctx context.Context, f feed.Feed, handlerID string, ts time.Time) error {
	data, err := wire.EncodeAnnouncement(&wire.Announcement{HandlerID: handlerID, Timestamp: ts})
	if err != nil {
		return fmt.Errorf("resource: announce %s: %w", handlerID, err)
	}
	if _, err := f.Append(ctx, feed.RegistrySubfeed, data); err != nil {
		return fmt.Errorf("resource: announce %s: %w", handlerID, err)
	}
	return nil
}

// Resource supervises one compute resource's connections.
type Resource struct {
	feed     feed.Feed
	mgr      *manager.Manager
	cfg      tether.Config
	logger   *slog.Logger
	connOpts []conn.Option

	mu        sync.Mutex
	conns     map[string]*conn.Connection
	nextIndex int
}

// Option configures a Resource.
type Option func(*Resource)

// WithConfig overrides the protocol configuration.
func WithConfig(cfg tether.Config) Option {
	return func(r *Resource) { r.cfg = cfg }
}

// WithLogger sets the resource's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resource) { r.logger = logger }
}

// WithConnOptions sets options applied to every spawned connection
// (cache, blob store, clock).
func WithConnOptions(opts ...conn.Option) Option {
	return func(r *Resource) { r.connOpts = opts }
}

// New creates a resource supervisor over the given feed and manager.
func New(f feed.Feed, mgr *manager.Manager, opts ...Option) *Resource {
	r := &Resource{
		feed:   f,
		mgr:    mgr,
		cfg:    tether.DefaultConfig(),
		logger: slog.Default(),
		conns:  make(map[string]*conn.Connection),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connections returns the number of live connections.
func (r *Resource) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Run serves until the context is cancelled. It watches the registry
// subfeed for announcements and ticks the manager and liveness reaper
// on every iterate interval. On return, every connection is stopped and
// the manager is closed.
func (r *Resource) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.watchLoop(ctx) })
	g.Go(func() error { return r.tickLoop(ctx) })

	err := g.Wait()

	r.mu.Lock()
	conns := make([]*conn.Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[string]*conn.Connection)
	r.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	r.mgr.Close()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchLoop scans the registry subfeed and spawns a connection per
// previously unseen handler id.
func (r *Resource) watchLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := r.acceptAnnouncements(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Resource) acceptAnnouncements(ctx context.Context) error {
	for {
		r.mu.Lock()
		index := r.nextIndex
		r.mu.Unlock()

		data, err := r.feed.At(ctx, feed.RegistrySubfeed, index)
		if errors.Is(err, tether.ErrNoSuchMessage) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("registry read failed", slog.String("error", err.Error()))
			return nil
		}

		r.mu.Lock()
		r.nextIndex++
		r.mu.Unlock()

		ann, uerr := wire.DecodeAnnouncement(data)
		if uerr != nil {
			r.logger.Warn("dropping malformed announcement",
				slog.Int("index", index),
				slog.String("error", uerr.Error()),
			)
			continue
		}

		r.spawn(ctx, ann.HandlerID)
	}
}

func (r *Resource) spawn(ctx context.Context, handlerID string) {
	r.mu.Lock()
	if _, exists := r.conns[handlerID]; exists {
		r.mu.Unlock()
		r.logger.Warn("duplicate announcement, ignoring", slog.String("handler_id", handlerID))
		return
	}
	r.mu.Unlock()

	opts := append([]conn.Option{
		conn.WithConfig(r.cfg),
		conn.WithLogger(r.logger),
	}, r.connOpts...)

	c := conn.New(handlerID, r.mgr, r.feed, opts...)
	if err := c.Start(ctx); err != nil {
		r.logger.Error("connection start failed",
			slog.String("handler_id", handlerID),
			slog.String("error", err.Error()),
		)
		return
	}

	r.mu.Lock()
	r.conns[handlerID] = c
	r.mu.Unlock()

	r.logger.Info("handler connected", slog.String("handler_id", handlerID))
}

// tickLoop drives the manager and reaps dead connections.
func (r *Resource) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.IterateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.mgr.Iterate(ctx)
			r.reap()
		}
	}
}

// reap stops connections whose keep-alive window has lapsed. Stopping a
// connection cancels its active jobs best-effort, including jobs another
// connection joined by hash; a later submission of the same hash starts
// a fresh run.
func (r *Resource) reap() {
	r.mu.Lock()
	var dead []*conn.Connection
	for handlerID, c := range r.conns {
		if !c.IsAlive() {
			dead = append(dead, c)
			delete(r.conns, handlerID)
		}
	}
	r.mu.Unlock()

	for _, c := range dead {
		r.logger.Warn("handler missed keep-alive window, disconnecting",
			slog.String("handler_id", c.HandlerID()),
		)
		c.Stop()
	}
}
