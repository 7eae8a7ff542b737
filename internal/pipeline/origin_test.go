package pipeline

import (
	"testing"
	"time"
)

func TestOriginUserMetadataRoundTrip(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := OriginMetadata{
		FileName:  "a.mp4",
		SizeBytes: 6 << 30,
		Uploader:  "sam@example.com",
		SourceURL: "https://drive.google.com/file/d/X/view",
		RequestID: "req-1",
		StartedAt: start,
	}

	out := OriginFromUserMetadata(in.UserMetadata())
	if !out.StartedAt.Equal(start) {
		t.Fatalf("start time mismatch: %v", out.StartedAt)
	}
	out.StartedAt, in.StartedAt = time.Time{}, time.Time{}
	if out != in {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestOriginFromUserMetadataDefaults(t *testing.T) {
	out := OriginFromUserMetadata(map[string]string{
		MetaOriginalSize:        "not-a-number",
		MetaProcessingStartTime: "yesterday",
	})
	if out.FileName != "unknown" || out.Uploader != "unknown" {
		t.Fatalf("expected unknown defaults, got %+v", out)
	}
	if out.SizeBytes != 0 || !out.StartedAt.IsZero() {
		t.Fatalf("expected zero size and time, got %+v", out)
	}
}

func TestMinutesSince(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := MinutesSince(start, start.Add(90*time.Second)); got != 1.5 {
		t.Fatalf("got %v", got)
	}
	if got := MinutesSince(time.Time{}, start); got != 0 {
		t.Fatalf("unknown start should yield 0, got %v", got)
	}
	if got := MinutesSince(start, start.Add(-time.Minute)); got != 0 {
		t.Fatalf("negative span should yield 0, got %v", got)
	}
}
