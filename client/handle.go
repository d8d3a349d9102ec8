package client

import (
	"context"
	"errors"
	"sync"

	"github.com/loomworks/tether/wire"
)

// eventBuffer bounds the per-handle event channel. The protocol emits
// at most a handful of events per job, so overflow means the consumer
// stopped reading; extra non-terminal events are dropped.
const eventBuffer = 16

// Handle tracks one submitted job on the client side.
type Handle struct {
	wireID string
	spec   *wire.JobSpec

	events chan *wire.Message

	mu      sync.Mutex
	final   *wire.Message
	err     error
	settled bool
	doneCh  chan struct{}
}

func newHandle(wireID string, spec *wire.JobSpec) *Handle {
	return &Handle{
		wireID: wireID,
		spec:   spec,
		events: make(chan *wire.Message, eventBuffer),
		doneCh: make(chan struct{}),
	}
}

// ID returns the handler-assigned wire job id.
func (h *Handle) ID() string { return h.wireID }

// Spec returns the submitted job description.
func (h *Handle) Spec() *wire.JobSpec { return h.spec }

// Events streams lifecycle events in arrival order. The channel closes
// after the terminal event is delivered.
func (h *Handle) Events() <-chan *wire.Message { return h.events }

// Done is closed once the job reaches a terminal event or the client
// shuts down.
func (h *Handle) Done() <-chan struct{} { return h.doneCh }

// Wait blocks until the terminal event and returns it. A JOB_ERROR
// event is returned alongside a RemoteError carrying its exception text.
func (h *Handle) Wait(ctx context.Context) (*wire.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.doneCh:
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err != nil {
		return h.final, h.err
	}
	return h.final, nil
}

// RemoteError is a job failure reported by the compute resource.
type RemoteError struct {
	Exception string
}

func (e *RemoteError) Error() string {
	return "client: remote job failed: " + e.Exception
}

// deliver records one event. Terminal events settle the handle.
func (h *Handle) deliver(msg *wire.Message) {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return
	}

	terminal := msg.Type == wire.MessageJobFinished || msg.Type == wire.MessageJobError
	if terminal {
		h.final = msg
		if msg.Type == wire.MessageJobError {
			h.err = &RemoteError{Exception: msg.Exception}
		}
		h.settled = true
	}
	h.mu.Unlock()

	select {
	case h.events <- msg:
	default:
		// Consumer is not reading; state above stays authoritative.
	}

	if terminal {
		close(h.events)
		close(h.doneCh)
	}
}

// fail settles the handle with a local error, such as client shutdown.
func (h *Handle) fail(err error) {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return
	}
	h.err = err
	h.settled = true
	h.mu.Unlock()

	close(h.events)
	close(h.doneCh)
}

// IsRemoteError reports whether err is a remote job failure.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
