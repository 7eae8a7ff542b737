package completion

import (
	"context"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/kafka"
)

// KafkaHandler adapts the correlator to the completion topic. Malformed
// events are skipped, as are events whose output is already gone from
// staging; those are reported once first. Anything else is returned for the
// consumer to retry, without a notification per attempt; the first failure
// marks the record as retrying.
func (c *Correlator) KafkaHandler() kafka.Handler {
	return func(ctx context.Context, msg kafkago.Message) error {
		ev, err := c.parse(msg.Value)
		if err != nil {
			return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		}
		_, err = c.Process(ctx, ev)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, pipeline.ErrMalformed):
			return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		case errors.Is(err, ErrOutputMissing):
			c.ReportFailure(ctx, ev, err)
			return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		default:
			if kafka.Attempt(ctx) == 1 {
				c.markRetrying(ctx, ev, err)
			}
			return err
		}
	}
}

// KafkaGiveUp reports an event the consumer stopped retrying.
func (c *Correlator) KafkaGiveUp() kafka.GiveUpFunc {
	return func(ctx context.Context, msg kafkago.Message, err error) {
		ev, perr := ParseEvent(msg.Value)
		if perr != nil {
			return
		}
		c.ReportFailure(ctx, ev, err)
	}
}
