package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/your-org/vidpress/internal/pipeline"
	"github.com/your-org/vidpress/pkg/notify"
)

func startedMessage(origin pipeline.OriginMetadata, jobID string) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Video compression has started.\n\n")
	fmt.Fprintf(&b, "File: %s\n", origin.FileName)
	fmt.Fprintf(&b, "Original size: %.2f MB\n", pipeline.BytesToMB(origin.SizeBytes))
	fmt.Fprintf(&b, "Uploader: %s\n", origin.Uploader)
	fmt.Fprintf(&b, "Job ID: %s\n", jobID)
	fmt.Fprintf(&b, "Started: %s\n", origin.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "\nYou will receive another email when processing finishes.\n")
	return notify.Message{
		Subject: "Video Processing Started: " + origin.FileName,
		Body:    b.String(),
	}
}

func passedThroughMessage(origin pipeline.OriginMetadata, finalURL string) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "The uploaded file is already within the size limit and was stored without compression.\n\n")
	fmt.Fprintf(&b, "File: %s\n", origin.FileName)
	fmt.Fprintf(&b, "Size: %.2f MB\n", pipeline.BytesToMB(origin.SizeBytes))
	fmt.Fprintf(&b, "Uploader: %s\n", origin.Uploader)
	fmt.Fprintf(&b, "Location: %s\n", finalURL)
	return notify.Message{
		Subject: "Video Stored: " + origin.FileName,
		Body:    b.String(),
	}
}

func errorMessage(req Request, requestID string, err error) notify.Message {
	name := req.DisplayName
	if name == "" {
		name = "unknown"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Video intake failed.\n\n")
	fmt.Fprintf(&b, "File: %s\n", name)
	if req.Uploader != "" {
		fmt.Fprintf(&b, "Uploader: %s\n", req.Uploader)
	}
	if req.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", req.SourceURL)
	}
	if requestID != "" {
		fmt.Fprintf(&b, "Request ID: %s\n", requestID)
	}
	fmt.Fprintf(&b, "Error: %s\n", describe(err))
	return notify.Message{
		Subject: "Video Processing Failed: " + name,
		Body:    b.String(),
	}
}
