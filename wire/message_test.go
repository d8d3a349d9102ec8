package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/loomworks/tether/job"
)

func TestEncodeDecode_AddJob(t *testing.T) {
	spec := &JobSpec{Name: "add", Version: "1", Args: []byte{1, 2}, Label: "add(2,3)"}
	original := NewAddJob("jh-1", spec, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	data, err := Encode(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Type != MessageAddJob || decoded.JobID != "jh-1" {
		t.Errorf("envelope mismatch: %+v", decoded)
	}
	if decoded.Job == nil || decoded.Job.Name != "add" || decoded.Job.Version != "1" {
		t.Errorf("job spec mismatch: %+v", decoded.Job)
	}
}

func TestDecode_UnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"NOT_A_TYPE"}`)); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestDecode_Garbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestWireFieldNames(t *testing.T) {
	// The field names are a cross-implementation contract.
	rt := job.RuntimeInfo{ElapsedMs: 42}
	m := NewJobError("jh-9", "work", time.Now().UTC(), rt, "bad")

	data, err := Encode(m)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, field := range []string{"type", "job_id", "timestamp", "label", "runtime_info", "exception"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing wire field %q", field)
		}
	}
}

func TestMessageType_Direction(t *testing.T) {
	inbound := []MessageType{MessageAddJob, MessageCancelJob, MessageKeepAlive}
	for _, mt := range inbound {
		if !mt.Inbound() {
			t.Errorf("%s should be inbound", mt)
		}
	}

	outbound := []MessageType{MessageJobQueued, MessageJobStarted, MessageJobFinished, MessageJobError}
	for _, mt := range outbound {
		if mt.Inbound() {
			t.Errorf("%s should be outbound", mt)
		}
	}
}

func TestWithJobID_Copies(t *testing.T) {
	original := NewJobFinished("jh-1", "work", time.Now().UTC(), job.RuntimeInfo{}, []byte("r"), "")

	rewritten := original.WithJobID("jh-2")

	if rewritten.JobID != "jh-2" {
		t.Errorf("expected rewritten id, got %q", rewritten.JobID)
	}
	if original.JobID != "jh-1" {
		t.Error("rewrite mutated the original message")
	}
	if string(rewritten.Result) != "r" {
		t.Error("rewrite dropped the result payload")
	}
}

func TestJobSpec_Hash(t *testing.T) {
	a := (&JobSpec{Name: "f", Version: "1", Args: []byte("x")}).Hash()
	b := job.ComputeHash("f", "1", []byte("x"))
	if a != b {
		t.Errorf("spec hash disagrees with job.ComputeHash: %s vs %s", a, b)
	}
}
