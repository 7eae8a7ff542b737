package completion

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/vidpress/internal/pipeline"
)

// Job states reported by the transcoder's state-change events.
const (
	StatusComplete = "COMPLETE"
	StatusError    = "ERROR"
)

// Event is a parsed job state-change notification.
type Event struct {
	JobID        string
	Status       string
	Time         time.Time
	UserMetadata map[string]string
	Origin       pipeline.OriginMetadata
	Outputs      []Output
	ErrorCode    int64
	ErrorMessage string
}

// Output is one file written by the job with the properties the
// transcoder derived for it.
type Output struct {
	Path       string
	DurationMs int64
	Width      int64
	Height     int64
}

// Resolution renders WIDTHxHEIGHT, or "" when unknown.
func (o Output) Resolution() string {
	if o.Width <= 0 || o.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", o.Width, o.Height)
}

type wireEvent struct {
	Time   string      `json:"time"`
	Detail *wireDetail `json:"detail"`
}

type wireDetail struct {
	JobID              string            `json:"jobId"`
	Status             string            `json:"status"`
	Timestamp          pipeline.FlexInt  `json:"timestamp"`
	UserMetadata       map[string]string `json:"userMetadata"`
	OutputGroupDetails []wireOutputGroup `json:"outputGroupDetails"`
	ErrorCode          pipeline.FlexInt  `json:"errorCode"`
	ErrorMessage       string            `json:"errorMessage"`
}

type wireOutputGroup struct {
	OutputDetails []wireOutput `json:"outputDetails"`
}

type wireOutput struct {
	OutputFilePaths []string         `json:"outputFilePaths"`
	DurationInMs    pipeline.FlexInt `json:"durationInMs"`
	VideoDetails    struct {
		WidthInPx  pipeline.FlexInt `json:"widthInPx"`
		HeightInPx pipeline.FlexInt `json:"heightInPx"`
	} `json:"videoDetails"`
}

// ParseEvent decodes an event-bus envelope. Envelopes without a detail,
// job id or status are rejected with pipeline.ErrMalformed.
func ParseEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("%w: decode completion event: %v", pipeline.ErrMalformed, err)
	}
	if w.Detail == nil {
		return Event{}, fmt.Errorf("%w: completion event has no detail", pipeline.ErrMalformed)
	}
	d := w.Detail
	if strings.TrimSpace(d.JobID) == "" || strings.TrimSpace(d.Status) == "" {
		return Event{}, fmt.Errorf("%w: completion event lacks jobId or status", pipeline.ErrMalformed)
	}

	ev := Event{
		JobID:        strings.TrimSpace(d.JobID),
		Status:       strings.ToUpper(strings.TrimSpace(d.Status)),
		UserMetadata: d.UserMetadata,
		Origin:       pipeline.OriginFromUserMetadata(d.UserMetadata),
		ErrorCode:    int64(d.ErrorCode),
		ErrorMessage: strings.TrimSpace(d.ErrorMessage),
	}
	if ts, err := time.Parse(time.RFC3339, w.Time); err == nil {
		ev.Time = ts.UTC()
	} else if d.Timestamp > 0 {
		ev.Time = time.UnixMilli(int64(d.Timestamp)).UTC()
	}

	for _, group := range d.OutputGroupDetails {
		for _, out := range group.OutputDetails {
			for _, p := range out.OutputFilePaths {
				ev.Outputs = append(ev.Outputs, Output{
					Path:       p,
					DurationMs: int64(out.DurationInMs),
					Width:      int64(out.VideoDetails.WidthInPx),
					Height:     int64(out.VideoDetails.HeightInPx),
				})
			}
		}
	}
	return ev, nil
}
