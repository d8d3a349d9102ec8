// Package tether coordinates remote job execution over append-only message
// feeds. A remote job handler submits jobs by appending messages to a feed;
// a local compute resource executes them and reports lifecycle events back
// on an outbound feed, deduplicating work and replaying cached results by
// content hash.
//
// Tether is a library, not a service. Wire a feed backend, register job
// functions, and run a resource.Resource (or a single conn.Connection)
// against it.
//
// # Architecture
//
// Each subsystem defines a narrow interface and lives in its own package:
//
//   - job: job entity, status state machine, function registry
//   - feed: append-only subfeed log (memory, Redis, Postgres backends)
//   - cache: content-addressed result cache layered on a feed
//   - blob: out-of-band storage for oversized results
//   - handler: execution substrates (in-process, worker pool)
//   - manager: job ownership arena with hash-keyed deduplication
//   - conn: the job-handler connection protocol state machine
//   - resource: supervisor that spawns one connection per remote handler
//   - client: the remote job handler side, for submitting jobs and
//     consuming their lifecycle events
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package tether
