package pipeline

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeTypeAliases(t *testing.T) {
	tests := map[string]Status{
		`{"type":"completion"}`: StatusCompleted,
		`{"type":"error"}`:      StatusFailed,
		`{"type":"failure"}`:    StatusFailed,
		`{"type":"Processing"}`: StatusProcessing,
		`{"type":"retrying"}`:   StatusRetrying,
		`{"type":""}`:           StatusCompleted,
	}
	for raw, want := range tests {
		var env RecordEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		got, err := env.Type.Status()
		if err != nil {
			t.Fatalf("status for %s: %v", raw, err)
		}
		if got != want {
			t.Fatalf("status for %s = %q, want %q", raw, got, want)
		}
	}

	var env RecordEnvelope
	if err := json.Unmarshal([]byte(`{"type":"archived"}`), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := env.Type.Status(); err == nil {
		t.Fatal("expected unknown type to fail")
	}
}

func TestEnvelopeKey(t *testing.T) {
	env := RecordEnvelope{Result: RecordResult{RequestID: "req-1"}}
	if env.Key() != "req-1" {
		t.Fatalf("expected request id fallback, got %q", env.Key())
	}
	env.JobInfo.JobID = "job-1"
	if env.Key() != "job-1" {
		t.Fatalf("expected job id, got %q", env.Key())
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusProcessing.Terminal() || StatusRetrying.Terminal() {
		t.Fatal("in-flight statuses are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed and failed are terminal")
	}
}
