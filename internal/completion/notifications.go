package completion

import (
	"fmt"
	"strings"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/notify"
)

func completedMessage(ev Event, s Stats) notify.Message {
	origin := ev.Origin
	var b strings.Builder
	fmt.Fprintf(&b, "Video compression completed successfully.\n\n")
	fmt.Fprintf(&b, "File: %s\n", origin.FileName)
	fmt.Fprintf(&b, "Uploader: %s\n", origin.Uploader)
	fmt.Fprintf(&b, "Original size: %.2f MB\n", pipeline.BytesToMB(s.OriginalBytes))
	fmt.Fprintf(&b, "Compressed size: %.2f MB\n", pipeline.BytesToMB(s.CompressedBytes))
	fmt.Fprintf(&b, "Compression ratio: %.2f:1\n", s.Ratio)
	if s.DurationSeconds > 0 {
		fmt.Fprintf(&b, "Duration: %.2f seconds\n", s.DurationSeconds)
	}
	if s.Resolution != "" {
		fmt.Fprintf(&b, "Resolution: %s\n", s.Resolution)
	}
	fmt.Fprintf(&b, "Processing time: %.2f minutes\n", s.ProcessingMinutes)
	fmt.Fprintf(&b, "Location: %s\n", s.URL)
	fmt.Fprintf(&b, "Job ID: %s\n", ev.JobID)
	return notify.Message{
		Subject: "Video Compression Complete: " + origin.FileName,
		Body:    b.String(),
	}
}

func failedMessage(ev Event, reason string, minutes float64) notify.Message {
	origin := ev.Origin
	var b strings.Builder
	fmt.Fprintf(&b, "Video compression failed.\n\n")
	fmt.Fprintf(&b, "File: %s\n", origin.FileName)
	fmt.Fprintf(&b, "Uploader: %s\n", origin.Uploader)
	fmt.Fprintf(&b, "Job ID: %s\n", ev.JobID)
	fmt.Fprintf(&b, "Error: %s\n", reason)
	fmt.Fprintf(&b, "Time before failure: %.2f minutes\n", minutes)
	fmt.Fprintf(&b, "\nThe original upload is kept in staging until it expires; submit it again to retry.\n")
	return notify.Message{
		Subject: "Video Processing Failed: " + origin.FileName,
		Body:    b.String(),
	}
}

func handlerErrorMessage(ev Event, err error) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "The completion handler could not process a job event.\n\n")
	fmt.Fprintf(&b, "Job ID: %s\n", ev.JobID)
	fmt.Fprintf(&b, "Status: %s\n", ev.Status)
	fmt.Fprintf(&b, "File: %s\n", ev.Origin.FileName)
	fmt.Fprintf(&b, "Error: %v\n", err)
	return notify.Message{
		Subject: "Video Completion Handler Error",
		Body:    b.String(),
	}
}
