package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/notify"
	"github.com/your-org/vidpress/pkg/storage/objectstore"
	"github.com/your-org/vidpress/pkg/transcode"
)

const (
	finalPrefix    = "compressed/"
	unknownFailure = "Unknown error"
)

var tracer = otel.Tracer("github.com/your-org/vidpress/internal/completion")

// ErrOutputMissing reports a transcoder output that is gone from staging and
// was never relocated. Retrying cannot recover it.
var ErrOutputMissing = errors.New("transcoder output missing")

// Outcome reports what the correlator did with an event.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeIgnored   Outcome = "ignored"
)

// ErrorLookup fetches error details for a failed job.
type ErrorLookup interface {
	JobError(ctx context.Context, jobID string) (transcode.JobError, error)
}

// Notifier delivers uploader-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Publisher writes messages onto the records topic.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, payload any, headers map[string]string) error
}

// Correlator turns terminal job events into relocated outputs, notifications
// and record envelopes.
type Correlator struct {
	store       objectstore.Client
	jobs        ErrorLookup
	notifier    Notifier
	records     Publisher
	logger      *zap.Logger
	finalBucket string
	now         func() time.Time
}

type Params struct {
	Store       objectstore.Client
	Jobs        ErrorLookup
	Notifier    Notifier
	Records     Publisher
	Logger      *zap.Logger
	FinalBucket string
	Now         func() time.Time
}

func NewCorrelator(p Params) *Correlator {
	c := &Correlator{
		store:       p.Store,
		jobs:        p.Jobs,
		notifier:    p.Notifier,
		records:     p.Records,
		logger:      p.Logger,
		finalBucket: p.FinalBucket,
		now:         p.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Handle parses raw and processes the event once. Malformed input is
// returned as pipeline.ErrMalformed without side effects; any other failure
// is reported to the operators before it is returned.
func (c *Correlator) Handle(ctx context.Context, raw []byte) (Event, Outcome, error) {
	ev, err := c.parse(raw)
	if err != nil {
		return Event{}, "", err
	}
	outcome, err := c.Process(ctx, ev)
	if err != nil {
		c.ReportFailure(ctx, ev, err)
	}
	return ev, outcome, err
}

func (c *Correlator) parse(raw []byte) (Event, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		c.logger.Warn("dropping malformed completion event", zap.Error(err))
	}
	return ev, err
}

// ReportFailure sends the handler error notification for an event that
// could not be processed. Malformed events are not reported.
func (c *Correlator) ReportFailure(ctx context.Context, ev Event, err error) {
	if err == nil || errors.Is(err, pipeline.ErrMalformed) {
		return
	}
	log := c.logger.With(zap.String("job_id", ev.JobID), zap.String("status", ev.Status))
	c.notify(ctx, handlerErrorMessage(ev, err), log)
}

// Process applies one event. It is safe to call repeatedly with the same
// event: relocation skips outputs already in place and statistics only
// depend on the event and the stored objects. Failures are logged and
// returned; the caller decides when to report them.
func (c *Correlator) Process(ctx context.Context, ev Event) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "completion.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", ev.JobID),
		attribute.String("job.status", ev.Status),
	)

	log := c.logger.With(zap.String("job_id", ev.JobID), zap.String("status", ev.Status))

	var (
		outcome Outcome
		err     error
	)
	switch ev.Status {
	case StatusComplete:
		outcome, err = OutcomeCompleted, c.complete(ctx, ev, log)
	case StatusError:
		outcome, err = OutcomeFailed, c.failed(ctx, ev, log)
	default:
		log.Info("ignoring non-terminal job status")
		return OutcomeIgnored, nil
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error("completion handling failed", zap.Error(err))
		return "", err
	}
	return outcome, nil
}

func (c *Correlator) complete(ctx context.Context, ev Event, log *zap.Logger) error {
	if len(ev.Outputs) == 0 {
		return fmt.Errorf("%w: job %s completed without output paths", pipeline.ErrMalformed, ev.JobID)
	}

	var (
		primary    objectstore.Ref
		primaryOut Output
		compressed int64
	)
	for i, out := range ev.Outputs {
		src, err := objectstore.ParseURI(out.Path)
		if err != nil {
			return fmt.Errorf("%w: %v", pipeline.ErrMalformed, err)
		}
		dst := objectstore.Ref{Bucket: c.finalBucket, Key: finalKey(ev, src)}
		size, err := c.relocate(ctx, src, dst, log)
		if err != nil {
			return err
		}
		compressed += size
		if i == 0 {
			primary, primaryOut = dst, out
		}
	}

	origin := ev.Origin
	done := c.completedAt(ev)
	stats := Stats{
		OriginalBytes:     origin.SizeBytes,
		CompressedBytes:   compressed,
		Ratio:             Ratio(origin.SizeBytes, compressed),
		DurationSeconds:   pipeline.Round2(float64(primaryOut.DurationMs) / 1000),
		ProcessingMinutes: pipeline.MinutesSince(origin.StartedAt, done),
		Resolution:        primaryOut.Resolution(),
		URL:               c.store.URL(primary),
	}
	log.Info("job completed",
		zap.String("file_name", origin.FileName),
		zap.Int64("original_bytes", stats.OriginalBytes),
		zap.Int64("compressed_bytes", stats.CompressedBytes),
		zap.Float64("ratio", stats.Ratio),
		zap.Float64("processing_minutes", stats.ProcessingMinutes),
	)

	c.notify(ctx, completedMessage(ev, stats), log)

	result := baseResult(ev, done)
	result.CompressedSizeBytes = pipeline.FlexInt(stats.CompressedBytes)
	result.CompressedURL = stats.URL
	result.CompressionRatio = pipeline.FlexFloat(stats.Ratio)
	result.DurationSeconds = pipeline.FlexFloat(stats.DurationSeconds)
	result.ProcessingTimeMinutes = pipeline.FlexFloat(stats.ProcessingMinutes)
	result.Resolution = stats.Resolution
	return c.publish(ctx, ev, pipeline.EnvelopeCompletion, result)
}

func (c *Correlator) failed(ctx context.Context, ev Event, log *zap.Logger) error {
	reason := c.failureReason(ctx, ev, log)
	done := c.completedAt(ev)
	minutes := pipeline.MinutesSince(ev.Origin.StartedAt, done)
	log.Warn("job failed",
		zap.String("file_name", ev.Origin.FileName),
		zap.String("reason", reason),
		zap.Float64("elapsed_minutes", minutes),
	)

	c.notify(ctx, failedMessage(ev, reason, minutes), log)

	result := baseResult(ev, done)
	result.ProcessingTimeMinutes = pipeline.FlexFloat(minutes)
	result.ErrorMessage = reason
	return c.publish(ctx, ev, pipeline.EnvelopeError, result)
}

// finalKey places an output under the request that produced it, so uploads
// sharing a file name never share a destination. Events without a request id
// fall back to the job id.
func finalKey(ev Event, src objectstore.Ref) string {
	unit := ev.Origin.RequestID
	if unit == "" {
		unit = ev.JobID
	}
	return path.Join(finalPrefix, unit, path.Base(src.Key))
}

// relocate moves src to dst and returns the size of dst. A destination that
// already exists belongs to this job, so a replay leaves it alone and never
// copies twice.
func (c *Correlator) relocate(ctx context.Context, src, dst objectstore.Ref, log *zap.Logger) (int64, error) {
	info, err := c.store.Stat(ctx, dst)
	switch {
	case err == nil:
		log.Info("output already relocated", zap.Stringer("destination", dst))
	case errors.Is(err, objectstore.ErrNotFound):
		if err := c.store.Copy(ctx, dst, src); err != nil {
			if errors.Is(err, objectstore.ErrNotFound) {
				return 0, fmt.Errorf("relocate %s to %s: %w", src, dst, ErrOutputMissing)
			}
			return 0, fmt.Errorf("relocate %s to %s: %w", src, dst, err)
		}
		if info, err = c.store.Stat(ctx, dst); err != nil {
			return 0, fmt.Errorf("stat relocated output %s: %w", dst, err)
		}
		log.Info("output relocated", zap.Stringer("source", src), zap.Stringer("destination", dst))
	default:
		return 0, fmt.Errorf("stat %s: %w", dst, err)
	}

	if err := c.store.Delete(ctx, src); err != nil && !errors.Is(err, objectstore.ErrNotFound) {
		log.Warn("delete transcoder output failed", zap.Stringer("source", src), zap.Error(err))
	}
	return info.Size, nil
}

// failureReason prefers the error carried on the event and falls back to
// asking the transcoder.
func (c *Correlator) failureReason(ctx context.Context, ev Event, log *zap.Logger) string {
	if ev.ErrorCode != 0 || ev.ErrorMessage != "" {
		return formatFailure(ev.ErrorCode, ev.ErrorMessage)
	}
	if c.jobs == nil {
		return unknownFailure
	}
	jobErr, err := c.jobs.JobError(ctx, ev.JobID)
	if err != nil {
		log.Warn("job error lookup failed", zap.Error(err))
		return unknownFailure
	}
	if jobErr.Code == 0 && jobErr.Message == "" {
		return unknownFailure
	}
	return formatFailure(int64(jobErr.Code), jobErr.Message)
}

func formatFailure(code int64, message string) string {
	if message == "" {
		message = unknownFailure
	}
	if code == 0 {
		return message
	}
	return fmt.Sprintf("%d: %s", code, message)
}

func (c *Correlator) completedAt(ev Event) time.Time {
	if !ev.Time.IsZero() {
		return ev.Time
	}
	return c.now().UTC()
}

func (c *Correlator) notify(ctx context.Context, msg notify.Message, log *zap.Logger) {
	if err := c.notifier.Notify(ctx, msg); err != nil {
		log.Warn("notification failed", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// publish forwards the record. Failures are returned so the event is
// redelivered.
func (c *Correlator) publish(ctx context.Context, ev Event, typ pipeline.EnvelopeType, result pipeline.RecordResult) error {
	env := pipeline.RecordEnvelope{
		Type:    typ,
		JobInfo: pipeline.JobInfo{JobID: ev.JobID, UserMetadata: ev.UserMetadata},
		Result:  result,
	}
	if err := c.records.PublishJSON(ctx, env.Key(), env, env.Headers()); err != nil {
		return fmt.Errorf("publish %s record: %w", typ, err)
	}
	return nil
}

// markRetrying records that the event failed and will be retried. The
// record store only affects visibility, so a publish failure is logged.
func (c *Correlator) markRetrying(ctx context.Context, ev Event, cause error) {
	result := baseResult(ev, c.completedAt(ev))
	result.CompletionDate = ""
	result.ErrorMessage = cause.Error()
	if err := c.publish(ctx, ev, pipeline.EnvelopeRetrying, result); err != nil {
		c.logger.Warn("publish retrying record failed", zap.String("job_id", ev.JobID), zap.Error(err))
	}
}

func baseResult(ev Event, done time.Time) pipeline.RecordResult {
	origin := ev.Origin
	r := pipeline.RecordResult{
		JobID:             ev.JobID,
		RequestID:         origin.RequestID,
		FileName:          origin.FileName,
		Uploader:          origin.Uploader,
		SourceURL:         origin.SourceURL,
		OriginalSizeBytes: pipeline.FlexInt(origin.SizeBytes),
		CompletionDate:    done.Format(time.RFC3339),
	}
	if !origin.StartedAt.IsZero() {
		r.UploadDate = origin.StartedAt.Format(time.RFC3339)
		r.ProcessingDate = r.UploadDate
	}
	return r
}

// Stats are the figures reported for a completed job.
type Stats struct {
	OriginalBytes     int64
	CompressedBytes   int64
	Ratio             float64
	DurationSeconds   float64
	ProcessingMinutes float64
	Resolution        string
	URL               string
}

// Ratio is original/compressed rounded to two decimals, or 0 when the
// compressed size is unknown.
func Ratio(original, compressed int64) float64 {
	if compressed <= 0 {
		return 0
	}
	return pipeline.Round2(float64(original) / float64(compressed))
}

// StatusCode maps a processing error to the HTTP status of the push endpoint.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pipeline.ErrMalformed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
