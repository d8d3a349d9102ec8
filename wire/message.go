// Package wire defines the message schema spoken between a remote job
// handler and a compute resource over append-only feeds.
//
// Field names are stable across implementations: type, job_id, timestamp,
// label, runtime_info, result, result_uri, exception. Messages are JSON
// envelopes; the args and result fields inside them carry opaque
// codec-encoded bytes.
package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/loomworks/tether/job"
)

// MessageType identifies the kind of protocol message.
type MessageType string

const (
	// Inbound: remote job handler → compute resource.
	MessageAddJob    MessageType = "ADD_JOB"
	MessageCancelJob MessageType = "CANCEL_JOB"
	MessageKeepAlive MessageType = "KEEP_ALIVE"

	// Outbound: compute resource → remote job handler.
	MessageJobQueued   MessageType = "JOB_QUEUED"
	MessageJobStarted  MessageType = "JOB_STARTED"
	MessageJobFinished MessageType = "JOB_FINISHED"
	MessageJobError    MessageType = "JOB_ERROR"
)

// Inbound reports whether t flows from the remote handler to the compute
// resource.
func (t MessageType) Inbound() bool {
	switch t {
	case MessageAddJob, MessageCancelJob, MessageKeepAlive:
		return true
	case MessageJobQueued, MessageJobStarted, MessageJobFinished, MessageJobError:
		return false
	}

	return false
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageAddJob, MessageCancelJob, MessageKeepAlive,
		MessageJobQueued, MessageJobStarted, MessageJobFinished, MessageJobError:
		return true
	}

	return false
}

// JobSpec is the serialized job description carried by ADD_JOB.
type JobSpec struct {
	// Name and Version identify the function to run.
	Name    string `json:"name" msgpack:"name"`
	Version string `json:"version" msgpack:"version"`

	// Args holds the codec-encoded arguments.
	Args []byte `json:"args,omitempty" msgpack:"args,omitempty"`

	// Label is a human-readable description. Defaults to Name.
	Label string `json:"label,omitempty" msgpack:"label,omitempty"`

	// ForceRun bypasses the cache lookup for this submission.
	ForceRun bool `json:"force_run,omitempty" msgpack:"force_run,omitempty"`
}

// Hash computes the content hash of the described job.
func (s *JobSpec) Hash() job.Hash {
	return job.ComputeHash(s.Name, s.Version, s.Args)
}

// Message is the protocol envelope. Exactly which fields are meaningful
// depends on Type; unused fields are omitted on the wire.
type Message struct {
	// Type identifies the message kind.
	Type MessageType `json:"type" msgpack:"type"`

	// JobID is the handler-assigned job identifier. This is the wire
	// namespace, distinct from locally assigned job ids.
	JobID string `json:"job_id,omitempty" msgpack:"job_id,omitempty"`

	// Timestamp is when the message was produced.
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`

	// Label is the job's human-readable label (outbound events).
	Label string `json:"label,omitempty" msgpack:"label,omitempty"`

	// Job is the serialized job description (ADD_JOB only).
	Job *JobSpec `json:"job,omitempty" msgpack:"job,omitempty"`

	// Runtime carries timing metadata (JOB_FINISHED, JOB_ERROR).
	Runtime *job.RuntimeInfo `json:"runtime_info,omitempty" msgpack:"runtime_info,omitempty"`

	// Result is the inline codec-encoded result (JOB_FINISHED, small
	// results only). Mutually exclusive with ResultURI.
	Result []byte `json:"result,omitempty" msgpack:"result,omitempty"`

	// ResultURI references an out-of-band result in the blob store
	// (JOB_FINISHED, oversized results).
	ResultURI string `json:"result_uri,omitempty" msgpack:"result_uri,omitempty"`

	// Exception is the string form of the failure (JOB_ERROR only).
	Exception string `json:"exception,omitempty" msgpack:"exception,omitempty"`
}

// Encode serializes a message to its wire form.
func Encode(m *Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: encode %s: %w", m.Type, err)
	}

	return data, nil
}

// Decode deserializes wire bytes into a message and validates its type.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: decode: %w", err)
	}
	if !m.Type.Valid() {
		return nil, fmt.Errorf("wire: decode: unknown message type %q", m.Type)
	}

	return &m, nil
}

// WithJobID returns a copy of m addressed to a different handler-assigned
// job id. The cache-replay path uses this to re-emit a stored JOB_FINISHED
// record for a new submission.
func (m *Message) WithJobID(jobID string) *Message {
	cp := *m
	cp.JobID = jobID

	return &cp
}

// ──────────────────────────────────────────────────
// Constructors
// ──────────────────────────────────────────────────

// NewAddJob builds an ADD_JOB message.
func NewAddJob(jobID string, spec *JobSpec, ts time.Time) *Message {
	return &Message{Type: MessageAddJob, JobID: jobID, Job: spec, Timestamp: ts}
}

// NewCancelJob builds a CANCEL_JOB message.
func NewCancelJob(jobID string, ts time.Time) *Message {
	return &Message{Type: MessageCancelJob, JobID: jobID, Timestamp: ts}
}

// NewKeepAlive builds a KEEP_ALIVE message.
func NewKeepAlive(ts time.Time) *Message {
	return &Message{Type: MessageKeepAlive, Timestamp: ts}
}

// NewJobQueued builds a JOB_QUEUED event.
func NewJobQueued(jobID, label string, ts time.Time) *Message {
	return &Message{Type: MessageJobQueued, JobID: jobID, Label: label, Timestamp: ts}
}

// NewJobStarted builds a JOB_STARTED event.
func NewJobStarted(jobID, label string, ts time.Time) *Message {
	return &Message{Type: MessageJobStarted, JobID: jobID, Label: label, Timestamp: ts}
}

// NewJobFinished builds a JOB_FINISHED event. Exactly one of result and
// resultURI should be set.
func NewJobFinished(jobID, label string, ts time.Time, rt job.RuntimeInfo, result []byte, resultURI string) *Message {
	return &Message{
		Type:      MessageJobFinished,
		JobID:     jobID,
		Label:     label,
		Timestamp: ts,
		Runtime:   &rt,
		Result:    result,
		ResultURI: resultURI,
	}
}

// NewJobError builds a JOB_ERROR event.
func NewJobError(jobID, label string, ts time.Time, rt job.RuntimeInfo, exception string) *Message {
	return &Message{
		Type:      MessageJobError,
		JobID:     jobID,
		Label:     label,
		Timestamp: ts,
		Runtime:   &rt,
		Exception: exception,
	}
}
