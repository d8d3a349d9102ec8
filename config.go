package tether

import "time"

// DefaultInlineResultLimit is the largest serialized result, in bytes,
// embedded directly in a JOB_FINISHED message. Larger results go to the
// blob store and are referenced by URI instead.
const DefaultInlineResultLimit = 10_000

// DefaultKeepAliveThreshold is how long a connection may go without a
// KEEP_ALIVE message before it is considered dead.
const DefaultKeepAliveThreshold = 80 * time.Second

// Config holds tuning knobs shared by connections and the compute resource.
type Config struct {
	// KeepAliveThreshold is the staleness limit for IsAlive. A connection
	// that has not seen a KEEP_ALIVE within this window reports dead.
	KeepAliveThreshold time.Duration

	// InlineResultLimit is the inline/blob cutover size for results.
	InlineResultLimit int

	// PollInterval is how often connection workers poll the inbound feed
	// for new messages.
	PollInterval time.Duration

	// IterateInterval is how often the compute resource ticks the job
	// manager to dispatch queued jobs.
	IterateInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeepAliveThreshold: DefaultKeepAliveThreshold,
		InlineResultLimit:  DefaultInlineResultLimit,
		PollInterval:       100 * time.Millisecond,
		IterateInterval:    100 * time.Millisecond,
	}
}
