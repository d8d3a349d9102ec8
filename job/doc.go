// Package job defines the job entity, its status state machine, content
// hashing, and the typed function registry.
//
// # Lifecycle
//
// A [Job] progresses monotonically through:
//
//	queued → running → finished
//	queued → running → error
//	queued → error            (cancelled before starting)
//
// StatusPending exists on the wire for jobs announced by a remote handler
// but not yet accepted locally; locally owned jobs begin in StatusQueued.
// Terminal transitions are idempotent: when a cancellation races a natural
// completion, whichever transition lands first wins and the loser is a
// logged no-op.
//
// # Observation
//
// [Job.OnStatusChanged] delivers the current status synchronously at
// subscribe time, then each later transition in order. Late subscribers
// therefore always observe a terminal state even if they attach after the
// job completed; the connection layer relies on this to re-announce jobs
// it joins mid-flight.
//
// # Identity and deduplication
//
// Every job carries a [Hash] over (name, version, encoded args). Equal
// hashes denote the same computation; the manager uses them to join new
// submissions onto already-running jobs and the cache keys results by them.
//
// # Defining a function
//
// Use [Definition] with typed argument and result values:
//
//	var Add = job.NewDefinition("add", "1",
//	    func(ctx context.Context, args AddArgs) (int, error) {
//	        return args.A + args.B, nil
//	    },
//	)
//	job.RegisterDefinition(registry, Add)
package job
