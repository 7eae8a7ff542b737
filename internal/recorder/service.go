package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/airtable"
)

var tracer = otel.Tracer("github.com/your-org/vidpress/internal/recorder")

// Table is the subset of the Airtable client the recorder uses.
type Table interface {
	FindByField(ctx context.Context, field, value string) (*airtable.Record, error)
	Create(ctx context.Context, fields map[string]any) (airtable.Record, error)
	Update(ctx context.Context, id string, fields map[string]any) (airtable.Record, error)
}

// Action is what an upsert did to the table.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// Result describes a completed write.
type Result struct {
	RecordID string `json:"recordId,omitempty"`
	Action   Action `json:"action"`
	Status   string `json:"status"`
}

// Recorder upserts processing records keyed by job id.
type Recorder struct {
	table  Table
	logger *zap.Logger
	now    func() time.Time
}

func New(table Table, logger *zap.Logger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{table: table, logger: logger, now: now}
}

// Handle decodes a records-topic envelope and writes it. An absent type is
// treated as a completion.
func (r *Recorder) Handle(ctx context.Context, raw []byte) (Result, error) {
	var env pipeline.RecordEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		err = fmt.Errorf("%w: decode record envelope: %v", pipeline.ErrMalformed, err)
		r.logger.Warn("dropping malformed record envelope", zap.Error(err))
		return Result{}, err
	}
	if env.Type == "" {
		env.Type = pipeline.EnvelopeCompletion
	}
	return r.Record(ctx, env)
}

// Record upserts env. Failures are logged and returned as SchemaMismatch or
// RecordWriteFailure; neither is meant to be retried by the caller.
func (r *Recorder) Record(ctx context.Context, env pipeline.RecordEnvelope) (Result, error) {
	ctx, span := tracer.Start(ctx, "recorder.record")
	defer span.End()

	status, err := env.Type.Status()
	if err != nil {
		err = fmt.Errorf("%w: %v", pipeline.ErrMalformed, err)
		r.logger.Warn("dropping record envelope", zap.Error(err))
		return Result{}, err
	}
	key := env.Key()
	if key == "" {
		err := fmt.Errorf("%w: record envelope has no job or request id", pipeline.ErrMalformed)
		r.logger.Warn("dropping record envelope", zap.Error(err))
		return Result{}, err
	}

	span.SetAttributes(attribute.String("job.id", key), attribute.String("record.status", string(status)))
	log := r.logger.With(zap.String("job_id", key), zap.String("status", string(status)))

	fields, err := BuildDraft(env, status, r.now()).Columns()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error("record schema mismatch", zap.Error(err))
		return Result{}, err
	}

	res, err := r.upsert(ctx, key, status, fields, log)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Error("record write failed", zap.String("kind", string(pipeline.KindOf(err))), zap.Error(err))
		return Result{}, err
	}
	log.Info("record written", zap.String("record_id", res.RecordID), zap.String("action", string(res.Action)))
	return res, nil
}

func (r *Recorder) upsert(ctx context.Context, key string, status pipeline.Status, fields map[string]any, log *zap.Logger) (Result, error) {
	const op = "upsert record"

	existing, err := r.table.FindByField(ctx, ColumnJobID, key)
	if err != nil {
		return Result{}, classify(op, err)
	}

	res := Result{Status: string(status)}
	if existing == nil {
		rec, err := r.table.Create(ctx, fields)
		if err != nil {
			return Result{}, classify(op, err)
		}
		res.RecordID, res.Action = rec.ID, ActionCreated
		return res, nil
	}

	current := pipeline.Status(fmt.Sprint(existing.Fields[ColumnStatus]))
	if !status.Terminal() && current.Terminal() {
		// A late processing or retrying record must not hide the outcome.
		log.Info("keeping terminal record", zap.String("record_id", existing.ID), zap.String("current", string(current)))
		res.RecordID, res.Action, res.Status = existing.ID, ActionSkipped, string(current)
		return res, nil
	}

	rec, err := r.table.Update(ctx, existing.ID, fields)
	if err != nil {
		return Result{}, classify(op, err)
	}
	res.RecordID, res.Action = rec.ID, ActionUpdated
	return res, nil
}

func classify(op string, err error) error {
	var apiErr *airtable.APIError
	if errors.As(err, &apiErr) && apiErr.UnknownField() {
		return pipeline.E(pipeline.KindSchemaMismatch, op, err)
	}
	return pipeline.E(pipeline.KindRecordWriteFailure, op, err)
}
