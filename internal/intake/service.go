package intake

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
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
	MessageProcessingStarted = "File processing started"
	MessagePassedThrough     = "File already optimized, moved to final bucket"

	stagingPrefix      = "uploads"
	compressedPrefix   = "compressed"
	uncompressedPrefix = "uncompressed"

	bytesPerGB = 1 << 30
)

var tracer = otel.Tracer("github.com/your-org/vidpress/internal/intake")

// Transcoder submits compression jobs.
type Transcoder interface {
	Submit(ctx context.Context, spec transcode.JobSpec) (string, error)
}

// Notifier delivers uploader-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// Publisher writes messages onto the records topic.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, payload any, headers map[string]string) error
}

// Service stages uploads and dispatches them to compression or passthrough.
type Service struct {
	store         objectstore.Client
	transcoder    Transcoder
	notifier      Notifier
	records       Publisher
	httpClient    *http.Client
	logger        *zap.Logger
	stagingBucket string
	finalBucket   string
	downloadBase  string
	limitGB       float64
	now           func() time.Time
	newID         func() string
}

type Params struct {
	Store              objectstore.Client
	Transcoder         Transcoder
	Notifier           Notifier
	Records            Publisher
	HTTPClient         *http.Client
	Logger             *zap.Logger
	StagingBucket      string
	FinalBucket        string
	DownloadBaseURL    string
	CompressionLimitGB float64
	Now                func() time.Time
	NewID              func() string
}

// Response is the result of one dispatch. It is always returned, never
// raised: failures are reported through StatusCode and Body.Error.
type Response struct {
	StatusCode int          `json:"statusCode"`
	Body       ResponseBody `json:"body"`
}

type ResponseBody struct {
	Message   string `json:"message,omitempty"`
	JobID     string `json:"jobId,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewService constructs an intake Service.
func NewService(p Params) *Service {
	s := &Service{
		store:         p.Store,
		transcoder:    p.Transcoder,
		notifier:      p.Notifier,
		records:       p.Records,
		httpClient:    p.HTTPClient,
		logger:        p.Logger,
		stagingBucket: p.StagingBucket,
		finalBucket:   p.FinalBucket,
		downloadBase:  p.DownloadBaseURL,
		limitGB:       p.CompressionLimitGB,
		now:           p.Now,
		newID:         p.NewID,
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.limitGB <= 0 {
		s.limitGB = 5.0
	}
	return s
}

// NeedsCompression reports whether an object of size bytes exceeds limitGB
// gibibytes. The comparison is strict: exactly the limit passes through.
func NeedsCompression(size int64, limitGB float64) bool {
	return float64(size)/bytesPerGB > limitGB
}

// Handle parses a raw intake payload and dispatches it.
func (s *Service) Handle(ctx context.Context, raw []byte) Response {
	req, err := ParseRequest(raw)
	if err != nil {
		return s.fail(ctx, Request{}, "", err)
	}
	return s.Dispatch(ctx, req)
}

// Dispatch runs Received -> Staged -> {Submitted | PassedThrough} for one
// request.
func (s *Service) Dispatch(ctx context.Context, req Request) Response {
	ctx, span := tracer.Start(ctx, "intake.dispatch")
	defer span.End()

	received := s.now().UTC()
	requestID := s.newID()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("file.name", req.DisplayName),
	)
	log := s.logger.With(zap.String("request_id", requestID), zap.String("file_name", req.DisplayName))
	log.Info("intake received", zap.String("uploader", req.Uploader), zap.Int64("declared_size", req.SizeBytes))

	fileID, err := ExtractFileID(req.SourceURL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return s.fail(ctx, req, requestID, err)
	}

	staged := objectstore.Ref{
		Bucket: s.stagingBucket,
		Key:    path.Join(stagingPrefix, requestID, req.DisplayName),
	}
	// Every key below is scoped by the request id, so uploads sharing a file
	// name never contend on storage.
	written, err := s.stage(ctx, DirectURL(s.downloadBase, fileID), staged, req, requestID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return s.fail(ctx, req, requestID, err)
	}
	log.Info("source staged", zap.Stringer("staged", staged), zap.Int64("bytes_written", written))

	fallback := written
	if fallback <= 0 {
		fallback = req.SizeBytes
	}
	size, compress := s.decide(ctx, staged, fallback, log)
	span.SetAttributes(attribute.Int64("file.size", size), attribute.Bool("file.compress", compress))

	origin := pipeline.OriginMetadata{
		FileName:  req.DisplayName,
		SizeBytes: size,
		Uploader:  req.Uploader,
		SourceURL: req.SourceURL,
		RequestID: requestID,
		StartedAt: received,
	}

	if compress {
		jobID, err := s.submit(ctx, staged, origin)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return s.fail(ctx, req, requestID, err)
		}
		log.Info("transcode job submitted", zap.String("job_id", jobID))
		s.notifyStarted(ctx, origin, jobID)
		s.publish(ctx, pipeline.RecordEnvelope{
			Type:    pipeline.EnvelopeProcessing,
			JobInfo: pipeline.JobInfo{JobID: jobID, UserMetadata: origin.UserMetadata()},
			Result:  processingResult(origin, jobID),
		})
		return Response{
			StatusCode: http.StatusOK,
			Body:       ResponseBody{Message: MessageProcessingStarted, JobID: jobID, RequestID: requestID},
		}
	}

	final, err := s.passthrough(ctx, staged, requestID, req.DisplayName, log)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return s.fail(ctx, req, requestID, err)
	}
	log.Info("file passed through", zap.Stringer("final", final))
	s.notifyPassedThrough(ctx, origin, final)
	s.publish(ctx, pipeline.RecordEnvelope{
		Type:    pipeline.EnvelopeCompletion,
		JobInfo: pipeline.JobInfo{UserMetadata: origin.UserMetadata()},
		Result:  passthroughResult(origin, s.store.URL(final), s.now().UTC()),
	})
	return Response{
		StatusCode: http.StatusOK,
		Body:       ResponseBody{Message: MessagePassedThrough, RequestID: requestID},
	}
}

// stage streams the source into the staging bucket as a multipart upload.
func (s *Service) stage(ctx context.Context, sourceURL string, dst objectstore.Ref, req Request, requestID string) (int64, error) {
	const op = "stage source"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, pipeline.E(pipeline.KindTransferFailure, op, err)
	}
	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return 0, pipeline.E(pipeline.KindTransferFailure, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, pipeline.Errorf(pipeline.KindTransferFailure, op, "source returned %s", resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "text/html" {
		// The drive answers with an HTML page when the file is private or
		// the id is wrong; never stage that as if it were the video.
		return 0, pipeline.Errorf(pipeline.KindTransferFailure, op, "source returned an HTML page instead of file content")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	written, err := s.store.PutStream(ctx, dst, resp.Body, objectstore.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": req.DisplayName,
			"uploader":          req.Uploader,
			"request-id":        requestID,
		},
	})
	if err != nil {
		return 0, pipeline.E(pipeline.KindTransferFailure, op, fmt.Errorf("put %s: %w", dst, err))
	}
	return written, nil
}

// decide reads the staged size from the store and applies the threshold.
// When the size cannot be read it errs on the side of compressing and
// reports fallback as the size.
func (s *Service) decide(ctx context.Context, staged objectstore.Ref, fallback int64, log *zap.Logger) (int64, bool) {
	info, err := s.store.Stat(ctx, staged)
	if err != nil {
		log.Warn("staged size unavailable, defaulting to compression",
			zap.Int64("fallback_size", fallback), zap.Error(err))
		return fallback, true
	}
	compress := NeedsCompression(info.Size, s.limitGB)
	log.Info("compression decision",
		zap.Int64("size_bytes", info.Size),
		zap.Float64("size_gb", float64(info.Size)/bytesPerGB),
		zap.Bool("compress", compress),
	)
	return info.Size, compress
}

func (s *Service) submit(ctx context.Context, staged objectstore.Ref, origin pipeline.OriginMetadata) (string, error) {
	// The transcoder treats a trailing slash as a folder destination.
	destination := objectstore.Ref{Bucket: s.stagingBucket, Key: path.Join(compressedPrefix, origin.RequestID) + "/"}
	jobID, err := s.transcoder.Submit(ctx, transcode.JobSpec{
		InputURI:       staged.URI(),
		DestinationURI: destination.URI(),
		UserMetadata:   origin.UserMetadata(),
	})
	if err != nil {
		return "", pipeline.E(pipeline.KindTranscodeSubmissionFailure, "submit transcode job", err)
	}
	return jobID, nil
}

func (s *Service) passthrough(ctx context.Context, staged objectstore.Ref, requestID, name string, log *zap.Logger) (objectstore.Ref, error) {
	final := objectstore.Ref{Bucket: s.finalBucket, Key: path.Join(uncompressedPrefix, requestID, name)}
	if err := s.store.Copy(ctx, final, staged); err != nil {
		return objectstore.Ref{}, pipeline.E(pipeline.KindTransferFailure, "copy to final bucket", err)
	}
	if err := s.store.Delete(ctx, staged); err != nil {
		// Lifecycle expiry removes the staged copy eventually.
		log.Warn("delete staged object failed", zap.Stringer("staged", staged), zap.Error(err))
	}
	return final, nil
}

// fail logs err, emits a best-effort error notification and converts err
// into a 500 response.
func (s *Service) fail(ctx context.Context, req Request, requestID string, err error) Response {
	s.logger.Error("intake failed",
		zap.String("request_id", requestID),
		zap.String("file_name", req.DisplayName),
		zap.String("kind", string(pipeline.KindOf(err))),
		zap.Error(err),
	)

	if nerr := s.notifier.Notify(ctx, errorMessage(req, requestID, err)); nerr != nil {
		s.logger.Warn("error notification failed", zap.String("request_id", requestID), zap.Error(nerr))
	}

	return Response{
		StatusCode: http.StatusInternalServerError,
		Body:       ResponseBody{Error: err.Error(), RequestID: requestID},
	}
}

func (s *Service) notifyStarted(ctx context.Context, origin pipeline.OriginMetadata, jobID string) {
	if err := s.notifier.Notify(ctx, startedMessage(origin, jobID)); err != nil {
		s.logger.Warn("start notification failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *Service) notifyPassedThrough(ctx context.Context, origin pipeline.OriginMetadata, final objectstore.Ref) {
	if err := s.notifier.Notify(ctx, passedThroughMessage(origin, s.store.URL(final))); err != nil {
		s.logger.Warn("passthrough notification failed", zap.String("request_id", origin.RequestID), zap.Error(err))
	}
}

// publish forwards a record envelope. The record store only affects
// visibility, so a failure here never fails the dispatch.
func (s *Service) publish(ctx context.Context, env pipeline.RecordEnvelope) {
	if s.records == nil {
		return
	}
	if err := s.records.PublishJSON(ctx, env.Key(), env, env.Headers()); err != nil {
		s.logger.Warn("publish record failed",
			zap.String("key", env.Key()),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
	}
}

func processingResult(origin pipeline.OriginMetadata, jobID string) pipeline.RecordResult {
	started := origin.StartedAt.Format(time.RFC3339)
	return pipeline.RecordResult{
		JobID:             jobID,
		RequestID:         origin.RequestID,
		FileName:          origin.FileName,
		Uploader:          origin.Uploader,
		SourceURL:         origin.SourceURL,
		OriginalSizeBytes: pipeline.FlexInt(origin.SizeBytes),
		UploadDate:        started,
		ProcessingDate:    started,
	}
}

func passthroughResult(origin pipeline.OriginMetadata, finalURL string, done time.Time) pipeline.RecordResult {
	r := processingResult(origin, "")
	r.CompressedSizeBytes = pipeline.FlexInt(origin.SizeBytes)
	r.CompressedURL = finalURL
	r.ProcessingTimeMinutes = pipeline.FlexFloat(pipeline.MinutesSince(origin.StartedAt, done))
	r.CompletionDate = done.Format(time.RFC3339)
	if origin.SizeBytes > 0 {
		r.CompressionRatio = 1
	}
	return r
}

// describe renders err for uploader-facing text without internal op chains.
func describe(err error) string {
	var pe *pipeline.Error
	if errors.As(err, &pe) && pe.Err != nil {
		return fmt.Sprintf("%s: %v", pe.Kind, pe.Err)
	}
	return strings.TrimSpace(err.Error())
}
