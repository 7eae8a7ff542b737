package recorder

import (
	"sort"
	"strings"
	"time"

	"github.com/your-org/vidpress/internal/pipeline"
)

// Airtable column names. They are matched exactly, including case and
// spacing.
const (
	ColumnFileName       = "File Name"
	ColumnOriginalSize   = "Original Size (MB)"
	ColumnCompressedSize = "Compressed Size (MB)"
	ColumnRatio          = "Compression Ratio"
	ColumnDuration       = "Duration (seconds)"
	ColumnProcessingTime = "Processing Time (minutes)"
	ColumnStatus         = "Status"
	ColumnUploader       = "Original Uploader"
	ColumnUploadDate     = "Upload Date"
	ColumnProcessingDate = "Processing Date"
	ColumnCompletionDate = "Completion Date"
	ColumnSourceURL      = "Source URL"
	ColumnCompressedURL  = "Compressed URL"
	ColumnJobID          = "Job ID"
	ColumnErrorMessage   = "Error Message"
)

// columns maps draft field names to table columns.
var columns = map[string]string{
	"fileName":              ColumnFileName,
	"originalSizeMB":        ColumnOriginalSize,
	"compressedSizeMB":      ColumnCompressedSize,
	"compressionRatio":      ColumnRatio,
	"durationSeconds":       ColumnDuration,
	"processingTimeMinutes": ColumnProcessingTime,
	"status":                ColumnStatus,
	"uploader":              ColumnUploader,
	"uploadDate":            ColumnUploadDate,
	"processingDate":        ColumnProcessingDate,
	"completionDate":        ColumnCompletionDate,
	"sourceURL":             ColumnSourceURL,
	"compressedURL":         ColumnCompressedURL,
	"jobId":                 ColumnJobID,
	"errorMessage":          ColumnErrorMessage,
}

// Draft is a processing record keyed by internal field names.
type Draft map[string]any

// Columns renames the draft to table columns. Any field without a column
// fails with SchemaMismatch.
func (d Draft) Columns() (map[string]any, error) {
	out := make(map[string]any, len(d))
	var unknown []string
	for name, v := range d {
		col, ok := columns[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		out[col] = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, pipeline.Errorf(pipeline.KindSchemaMismatch, "map record fields", "no column for %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// BuildDraft renders an envelope as a draft with status applied. Missing
// sizes become 0, missing names "unknown" and missing dates now.
func BuildDraft(env pipeline.RecordEnvelope, status pipeline.Status, now time.Time) Draft {
	r := env.Result
	origin := pipeline.OriginFromUserMetadata(env.JobInfo.UserMetadata)
	stamp := now.UTC().Format(time.RFC3339)
	originalMB := pipeline.BytesToMB(firstPositive(int64(r.OriginalSizeBytes), origin.SizeBytes))
	compressedMB := pipeline.BytesToMB(int64(r.CompressedSizeBytes))

	d := Draft{
		"fileName":              orUnknown(firstNonEmpty(r.FileName, origin.FileName)),
		"originalSizeMB":        originalMB,
		"compressedSizeMB":      compressedMB,
		"processingTimeMinutes": pipeline.Round2(float64(r.ProcessingTimeMinutes)),
		"status":                string(status),
		"uploader":              orUnknown(firstNonEmpty(r.Uploader, origin.Uploader)),
		"uploadDate":            firstNonEmpty(r.UploadDate, stamp),
		"processingDate":        firstNonEmpty(r.ProcessingDate, startedAt(origin), stamp),
		"jobId":                 env.Key(),
	}
	// The stored ratio must agree with the two stored sizes, so it is derived
	// from them rather than taken from the envelope.
	if compressedMB > 0 {
		if ratio := pipeline.Round2(originalMB / compressedMB); ratio > 0 {
			d["compressionRatio"] = ratio
		}
	}
	if secs := pipeline.Round2(float64(r.DurationSeconds)); secs > 0 {
		d["durationSeconds"] = secs
	}
	if status.Terminal() {
		d["completionDate"] = firstNonEmpty(r.CompletionDate, stamp)
	}
	if src := firstNonEmpty(r.SourceURL, origin.SourceURL); src != "" {
		d["sourceURL"] = src
	}
	if r.CompressedURL != "" {
		d["compressedURL"] = r.CompressedURL
	}
	switch {
	case status == pipeline.StatusCompleted:
		// Clears a message left by an earlier retrying record.
		d["errorMessage"] = ""
	case r.ErrorMessage != "":
		d["errorMessage"] = r.ErrorMessage
	case status == pipeline.StatusFailed:
		d["errorMessage"] = "Unknown error"
	}
	return d
}

func startedAt(o pipeline.OriginMetadata) string {
	if o.StartedAt.IsZero() {
		return ""
	}
	return o.StartedAt.Format(time.RFC3339)
}

// firstNonEmpty returns the first value that is neither blank nor the
// "unknown" placeholder.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && v != "unknown" {
			return v
		}
	}
	return ""
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
