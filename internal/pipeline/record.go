package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a processing record.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusRetrying   Status = "Retrying"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EnvelopeType tags a message on the records topic.
type EnvelopeType string

const (
	EnvelopeProcessing EnvelopeType = "processing"
	EnvelopeCompletion EnvelopeType = "completion"
	EnvelopeError      EnvelopeType = "error"
	EnvelopeRetrying   EnvelopeType = "retrying"
)

// Status maps an envelope type to the record status it produces.
func (t EnvelopeType) Status() (Status, error) {
	switch t {
	case EnvelopeProcessing:
		return StatusProcessing, nil
	case EnvelopeCompletion:
		return StatusCompleted, nil
	case EnvelopeError:
		return StatusFailed, nil
	case EnvelopeRetrying:
		return StatusRetrying, nil
	default:
		return "", fmt.Errorf("unknown envelope type %q", string(t))
	}
}

func (t *EnvelopeType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		// Older producers omitted the type on completions.
		*t = EnvelopeCompletion
	case "failure":
		*t = EnvelopeError
	default:
		*t = EnvelopeType(s)
	}
	return nil
}

// RecordEnvelope is the message schema of the records topic.
type RecordEnvelope struct {
	Type    EnvelopeType `json:"type"`
	JobInfo JobInfo      `json:"job_info"`
	Result  RecordResult `json:"result"`
}

type JobInfo struct {
	JobID        string            `json:"job_id"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// RecordResult carries the computed values for one processing record. Dates
// are RFC3339 strings so a malformed upstream timestamp never fails decoding.
type RecordResult struct {
	JobID                 string    `json:"job_id,omitempty"`
	RequestID             string    `json:"request_id,omitempty"`
	FileName              string    `json:"file_name,omitempty"`
	Uploader              string    `json:"uploader,omitempty"`
	SourceURL             string    `json:"source_url,omitempty"`
	OriginalSizeBytes     FlexInt   `json:"original_size_bytes"`
	CompressedSizeBytes   FlexInt   `json:"compressed_size_bytes"`
	CompressedURL         string    `json:"compressed_url,omitempty"`
	CompressionRatio      FlexFloat `json:"compression_ratio"`
	DurationSeconds       FlexFloat `json:"duration_seconds"`
	ProcessingTimeMinutes FlexFloat `json:"processing_time_minutes"`
	Resolution            string    `json:"resolution,omitempty"`
	UploadDate            string    `json:"upload_date,omitempty"`
	ProcessingDate        string    `json:"processing_date,omitempty"`
	CompletionDate        string    `json:"completion_date,omitempty"`
	ErrorMessage          string    `json:"error_message,omitempty"`
}

// Key returns the partition key for the envelope: the job id when one
// exists, the intake request id otherwise.
func (e RecordEnvelope) Key() string {
	if e.JobInfo.JobID != "" {
		return e.JobInfo.JobID
	}
	if e.Result.JobID != "" {
		return e.Result.JobID
	}
	return e.Result.RequestID
}

// Headers returns the Kafka headers attached to a published envelope.
func (e RecordEnvelope) Headers() map[string]string {
	return map[string]string{
		"event_type": "record." + string(e.Type),
	}
}
