package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"
)

func testConsumer(t *testing.T) *Consumer {
	return &Consumer{
		logger:       zaptest.NewLogger(t),
		retryInitial: time.Millisecond,
		retryMax:     5 * time.Millisecond,
	}
}

func TestDispatchRetriesUntilSuccess(t *testing.T) {
	c := testConsumer(t)
	calls := 0
	var seen []uint
	err := c.dispatch(context.Background(), func(ctx context.Context, _ kafkago.Message) error {
		calls++
		seen = append(seen, Attempt(ctx))
		if calls < 3 {
			return errors.New("object store unavailable")
		}
		return nil
	}, kafkago.Message{}, nil)

	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("unexpected attempt numbers %v", seen)
	}
	if Attempt(context.Background()) != 0 {
		t.Fatal("attempt outside a consumer must be 0")
	}
}

func TestDispatchStopsOnSkip(t *testing.T) {
	c := testConsumer(t)
	calls := 0
	err := c.dispatch(context.Background(), func(context.Context, kafkago.Message) error {
		calls++
		return fmt.Errorf("bad payload: %w", ErrSkip)
	}, kafkago.Message{}, nil)

	if !errors.Is(err, ErrSkip) {
		t.Fatalf("expected ErrSkip, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestDispatchStopsWhenCancelled(t *testing.T) {
	c := testConsumer(t)
	ctx, cancel := context.WithCancel(context.Background())
	err := c.dispatch(ctx, func(context.Context, kafkago.Message) error {
		cancel()
		return errors.New("broker down")
	}, kafkago.Message{}, nil)

	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if ctx.Err() == nil {
		t.Fatal("context should be cancelled")
	}
}

func TestDispatchStopsAfterMaxAttempts(t *testing.T) {
	c := testConsumer(t)
	c.maxAttempts = 4
	calls := 0
	failure := errors.New("staged output expired")
	err := c.dispatch(context.Background(), func(context.Context, kafkago.Message) error {
		calls++
		return failure
	}, kafkago.Message{}, nil)

	if !errors.Is(err, failure) {
		t.Fatalf("expected last handler error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestAbandonCallsGiveUpOnce(t *testing.T) {
	c := testConsumer(t)
	var given []error
	c.onGiveUp = func(_ context.Context, _ kafkago.Message, err error) {
		given = append(given, err)
	}

	c.abandon(context.Background(), kafkago.Message{}, fmt.Errorf("bad payload: %w", ErrSkip), nil)
	if len(given) != 0 {
		t.Fatal("skipped messages must not reach the give-up hook")
	}

	failure := errors.New("relocate failed")
	c.abandon(context.Background(), kafkago.Message{}, failure, nil)
	if len(given) != 1 || !errors.Is(given[0], failure) {
		t.Fatalf("unexpected give-up calls %v", given)
	}
}
