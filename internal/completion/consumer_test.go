package completion

import (
	"context"
	"errors"
	"strings"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/kafka"
	"github.com/your-org/vidpress/pkg/storage/objectstore"
)

func TestKafkaHandler(t *testing.T) {
	h := newHarness(t)
	h.store.Seed(stagedOutput, gib)
	handle := h.correlator.KafkaHandler()

	if err := handle(context.Background(), kafkago.Message{Value: []byte(completeEvent)}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := handle(context.Background(), kafkago.Message{Value: []byte(`{}`)}); !errors.Is(err, kafka.ErrSkip) {
		t.Fatalf("expected malformed event to be skipped, got %v", err)
	}

	h.store.CopyErr = errInjected
	h.store.Seed(objectstore.Ref{Bucket: "staging", Key: "compressed/b_compressed.mp4"}, gib)
	raw := []byte(`{"time":"2024-03-01T12:30:00Z","detail":{"jobId":"j-2","status":"COMPLETE",
		"outputGroupDetails":[{"outputDetails":[{"outputFilePaths":["s3://staging/compressed/b_compressed.mp4"]}]}]}}`)
	err := handle(context.Background(), kafkago.Message{Value: raw})
	if err == nil || errors.Is(err, kafka.ErrSkip) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestKafkaHandlerNotifiesOncePerMessage(t *testing.T) {
	h := newHarness(t)
	handle := h.correlator.KafkaHandler()
	msg := kafkago.Message{Value: []byte(completeEvent)}

	// Output already expired from staging: skipped and reported once.
	err := handle(context.Background(), msg)
	if !errors.Is(err, kafka.ErrSkip) || !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("expected missing output to be skipped, got %v", err)
	}
	if len(h.notifier.Messages) != 1 {
		t.Fatalf("expected one notification, got %d", len(h.notifier.Messages))
	}

	// Retryable failures stay quiet until the consumer gives up.
	h.notifier.Messages = nil
	h.store.Seed(stagedOutput, gib)
	h.store.CopyErr = errInjected
	for i := 0; i < 3; i++ {
		if err := handle(context.Background(), msg); err == nil || errors.Is(err, kafka.ErrSkip) {
			t.Fatalf("attempt %d: expected retryable error, got %v", i+1, err)
		}
	}
	if len(h.notifier.Messages) != 0 {
		t.Fatalf("retries must not notify, got %d messages", len(h.notifier.Messages))
	}
	// Outside a consumer there is no attempt number, so no retrying record.
	if len(h.records.Envelopes) != 0 {
		t.Fatalf("unexpected records %+v", h.records.Envelopes)
	}

	h.correlator.KafkaGiveUp()(context.Background(), msg, errInjected)
	if len(h.notifier.Messages) != 1 || h.notifier.Messages[0].Subject != "Video Completion Handler Error" {
		t.Fatalf("expected one handler error notification, got %+v", h.notifier.Messages)
	}
}

func TestKafkaHandlerMarksRetryingOnFirstAttempt(t *testing.T) {
	h := newHarness(t)
	h.store.Seed(stagedOutput, gib)
	h.store.CopyErr = errInjected
	handle := h.correlator.KafkaHandler()
	msg := kafkago.Message{Value: []byte(completeEvent)}

	for attempt := uint(1); attempt <= 3; attempt++ {
		err := handle(kafka.WithAttempt(context.Background(), attempt), msg)
		if err == nil || errors.Is(err, kafka.ErrSkip) {
			t.Fatalf("attempt %d: expected retryable error, got %v", attempt, err)
		}
	}

	if len(h.records.Envelopes) != 1 {
		t.Fatalf("expected a single retrying record, got %d", len(h.records.Envelopes))
	}
	env := h.records.Envelopes[0]
	if env.Type != pipeline.EnvelopeRetrying || h.records.Keys[0] != "1709294400000-abc123" {
		t.Fatalf("unexpected envelope %q key %q", env.Type, h.records.Keys[0])
	}
	if !strings.Contains(env.Result.ErrorMessage, errInjected.Error()) || env.Result.CompletionDate != "" {
		t.Fatalf("unexpected result %+v", env.Result)
	}
}
