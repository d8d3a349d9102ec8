package tether

import "errors"

var (
	// Feed errors.
	ErrFeedUnavailable = errors.New("tether: feed unavailable")
	ErrNoSuchMessage   = errors.New("tether: no message at index")

	// Job errors.
	ErrJobNotFound       = errors.New("tether: job not found")
	ErrUnknownFunction   = errors.New("tether: no function registered")
	ErrInvalidTransition = errors.New("tether: invalid status transition")
	ErrJobCancelled      = errors.New("tether: job cancelled")

	// Blob errors.
	ErrBlobNotFound = errors.New("tether: blob not found")

	// Handler errors.
	ErrHandlerClosed = errors.New("tether: handler closed")

	// Connection errors.
	ErrConnectionClosed = errors.New("tether: connection closed")
)
