package pipeline

import (
	"strconv"
	"time"
)

// User metadata keys written onto every transcode job. The completion event
// echoes them back, which is how a finished job is tied to its upload.
const (
	MetaOriginalFileName    = "OriginalFileName"
	MetaOriginalSize        = "OriginalSize"
	MetaUploader            = "Uploader"
	MetaSourceURL           = "SourceURL"
	MetaRequestID           = "RequestID"
	MetaProcessingStartTime = "ProcessingStartTime"
)

const unknown = "unknown"

// OriginMetadata is the intake request as carried on a transcode job.
type OriginMetadata struct {
	FileName  string
	SizeBytes int64
	Uploader  string
	SourceURL string
	RequestID string
	StartedAt time.Time
}

// UserMetadata renders the origin as a flat string map.
func (o OriginMetadata) UserMetadata() map[string]string {
	m := map[string]string{
		MetaOriginalFileName: o.FileName,
		MetaOriginalSize:     strconv.FormatInt(o.SizeBytes, 10),
		MetaUploader:         o.Uploader,
	}
	if o.SourceURL != "" {
		m[MetaSourceURL] = o.SourceURL
	}
	if o.RequestID != "" {
		m[MetaRequestID] = o.RequestID
	}
	if !o.StartedAt.IsZero() {
		m[MetaProcessingStartTime] = o.StartedAt.UTC().Format(time.RFC3339)
	}
	return m
}

// OriginFromUserMetadata reverses UserMetadata. Missing or unparsable values
// fall back to "unknown", zero size, or a zero start time.
func OriginFromUserMetadata(m map[string]string) OriginMetadata {
	o := OriginMetadata{
		FileName:  valueOr(m, MetaOriginalFileName, unknown),
		Uploader:  valueOr(m, MetaUploader, unknown),
		SourceURL: m[MetaSourceURL],
		RequestID: m[MetaRequestID],
	}
	if raw := m[MetaOriginalSize]; raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			o.SizeBytes = n
		}
	}
	if raw := m[MetaProcessingStartTime]; raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			o.StartedAt = ts.UTC()
		}
	}
	return o
}

// MinutesSince returns the minutes between start and end rounded to two
// decimals, or 0 when start is unknown.
func MinutesSince(start, end time.Time) float64 {
	if start.IsZero() || end.Before(start) {
		return 0
	}
	return Round2(end.Sub(start).Minutes())
}

func valueOr(m map[string]string, key, fallback string) string {
	if v := m[key]; v != "" {
		return v
	}
	return fallback
}
