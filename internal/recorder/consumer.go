package recorder

import (
	"context"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/kafka"
)

// KafkaHandler adapts the recorder to the records topic. The record store
// only affects visibility, so classified failures are committed after
// logging instead of blocking the partition.
func (r *Recorder) KafkaHandler() kafka.Handler {
	return func(ctx context.Context, msg kafkago.Message) error {
		_, err := r.Handle(ctx, msg.Value)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, pipeline.ErrMalformed),
			errors.Is(err, pipeline.ErrSchemaMismatch),
			errors.Is(err, pipeline.ErrRecordWriteFailure):
			return fmt.Errorf("%w: %w", kafka.ErrSkip, err)
		default:
			return err
		}
	}
}
