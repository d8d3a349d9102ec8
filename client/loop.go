package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loomworks/tether"
	"github.com/loomworks/tether/feed"
	"github.com/loomworks/tether/wire"
)

// run drives the keep-alive ticker and the outbound event poll from a
// single goroutine.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	keepAlive := time.NewTicker(c.keepAliveInterval)
	defer keepAlive.Stop()

	// The first keep-alive goes out immediately; creation time only
	// covers the gap until this loop is scheduled.
	c.sendKeepAlive(ctx)

	subfeed := feed.OutboundSubfeed(c.handlerID)
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			c.sendKeepAlive(ctx)
		default:
		}

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
				c.logger.Warn("dropping undecodable event",
					slog.Int("index", index),
					slog.String("error", derr.Error()),
				)
				continue
			}
			c.dispatch(msg)

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
			c.logger.Warn("outbound feed read failed",
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

func (c *Client) sendKeepAlive(ctx context.Context) {
	if err := c.send(ctx, wire.NewKeepAlive(c.now())); err != nil {
		c.logger.Warn("keep-alive send failed", slog.String("error", err.Error()))
	}
}

// dispatch routes one event to its handle. Terminal events settle and
// release the handle.
func (c *Client) dispatch(msg *wire.Message) {
	if msg.Type.Inbound() {
		c.logger.Warn("unexpected inbound message type on outbound subfeed",
			slog.String("type", string(msg.Type)),
		)
		return
	}

	c.mu.Lock()
	h, ok := c.pending[msg.JobID]
	terminal := msg.Type == wire.MessageJobFinished || msg.Type == wire.MessageJobError
	if ok && terminal {
		delete(c.pending, msg.JobID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("event for unknown job id",
			slog.String("wire_job_id", msg.JobID),
			slog.String("type", string(msg.Type)),
		)
		return
	}

	h.deliver(msg)
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
