package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one message. Returning nil commits the offset.
type Handler func(ctx context.Context, msg kafkago.Message) error

// ErrSkip may be wrapped by a Handler to signal that the message is
// unprocessable and should be committed without a retry.
var ErrSkip = errors.New("skip message")

// GiveUpFunc is called once for a message whose handler still fails after
// the last attempt. The message is committed afterwards.
type GiveUpFunc func(ctx context.Context, msg kafkago.Message, err error)

const defaultMaxAttempts = 10

type attemptKey struct{}

// Attempt reports which delivery attempt of the current message a Handler is
// running, starting at 1. It is 0 outside a Consumer.
func Attempt(ctx context.Context) uint {
	n, _ := ctx.Value(attemptKey{}).(uint)
	return n
}

// WithAttempt returns ctx carrying attempt n. The Consumer sets it before
// each call to a Handler.
func WithAttempt(ctx context.Context, n uint) context.Context {
	return context.WithValue(ctx, attemptKey{}, n)
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	// RetryInitial and RetryMax bound the backoff between attempts on a
	// failing message. MaxAttempts caps the attempts; zero means 10.
	RetryInitial time.Duration
	RetryMax     time.Duration
	MaxAttempts  uint
	OnGiveUp     GiveUpFunc
}

// Consumer reads a topic as a member of a consumer group.
type Consumer struct {
	reader       *kafkago.Reader
	logger       *zap.Logger
	retryInitial time.Duration
	retryMax     time.Duration
	maxAttempts  uint
	onGiveUp     GiveUpFunc
}

func NewConsumer(cfg ConsumerConfig, logger *zap.Logger) *Consumer {
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = time.Minute
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Consumer{
		reader:       reader,
		logger:       logger,
		retryInitial: cfg.RetryInitial,
		retryMax:     cfg.RetryMax,
		maxAttempts:  cfg.MaxAttempts,
		onGiveUp:     cfg.OnGiveUp,
	}
}

// Consume blocks, dispatching messages to handler until ctx is cancelled.
// A failing message is retried with backoff and stays uncommitted until it
// succeeds, is skipped, or runs out of attempts, so a restart redelivers it.
func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		fields := []zap.Field{
			zap.String("topic", msg.Topic),
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("key", msg.Key),
			zap.String("event_type", Header(msg, "event_type")),
		}

		msgCtx := extractTrace(ctx, &msg)
		if err := c.dispatch(msgCtx, handler, msg, fields); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.abandon(msgCtx, msg, err, fields)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("commit message failed", append(fields, zap.Error(err))...)
		}
	}
}

// abandon logs a message that will be committed without success.
func (c *Consumer) abandon(ctx context.Context, msg kafkago.Message, err error, fields []zap.Field) {
	if errors.Is(err, ErrSkip) {
		c.logger.Warn("message skipped", append(fields, zap.Error(err))...)
		return
	}
	c.logger.Error("message abandoned after retries",
		append(fields, zap.Uint("attempts", c.maxAttempts), zap.Error(err))...)
	if c.onGiveUp != nil {
		c.onGiveUp(ctx, msg, err)
	}
}

// dispatch runs handler until it succeeds, returns ErrSkip, runs out of
// attempts, or ctx ends.
func (c *Consumer) dispatch(ctx context.Context, handler Handler, msg kafkago.Message, fields []zap.Field) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxInterval = c.retryMax

	var attempt uint
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := handler(WithAttempt(ctx, attempt), msg)
		if err != nil && errors.Is(err, ErrSkip) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Error("message handling failed, retrying",
				append(fields, zap.Duration("wait", wait), zap.Error(err))...)
		}),
	)
	return err
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
