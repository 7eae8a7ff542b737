package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"path"
	"strings"

	"github.com/your-org/vidpress/internal/pipeline"
)

const opParse = "parse intake request"

// Request is one upload to be staged and, if needed, compressed.
type Request struct {
	SourceURL   string
	DisplayName string
	SizeBytes   int64
	Uploader    string
}

type wireRequest struct {
	FileURL  string            `json:"fileUrl"`
	FileName string            `json:"fileName"`
	FileSize *pipeline.FlexInt `json:"fileSize"`
	Uploader string            `json:"uploader"`
	Body     json.RawMessage   `json:"body"`
}

// ParseRequest decodes an intake payload. Both the flat shape and the
// gateway envelope {"body": "<json string>"} are accepted.
func ParseRequest(raw []byte) (Request, error) {
	w, err := decodeWire(raw, true)
	if err != nil {
		return Request{}, err
	}

	var missing []string
	if strings.TrimSpace(w.FileURL) == "" {
		missing = append(missing, "fileUrl")
	}
	if strings.TrimSpace(w.FileName) == "" {
		missing = append(missing, "fileName")
	}
	if w.FileSize == nil {
		missing = append(missing, "fileSize")
	}
	if len(missing) > 0 {
		return Request{}, pipeline.Errorf(pipeline.KindInvalidRequest, opParse, "missing required fields: %s", strings.Join(missing, ", "))
	}
	if *w.FileSize < 0 {
		return Request{}, pipeline.Errorf(pipeline.KindInvalidRequest, opParse, "fileSize must not be negative")
	}

	name, err := cleanName(w.FileName)
	if err != nil {
		return Request{}, pipeline.E(pipeline.KindInvalidRequest, opParse, err)
	}

	uploader := strings.TrimSpace(w.Uploader)
	if uploader == "" {
		uploader = "unknown"
	}

	return Request{
		SourceURL:   strings.TrimSpace(w.FileURL),
		DisplayName: name,
		SizeBytes:   int64(*w.FileSize),
		Uploader:    uploader,
	}, nil
}

func decodeWire(raw []byte, unwrap bool) (wireRequest, error) {
	var w wireRequest
	if err := json.Unmarshal(raw, &w); err != nil {
		return wireRequest{}, pipeline.E(pipeline.KindInvalidRequest, opParse, err)
	}

	body := bytes.TrimSpace(w.Body)
	if !unwrap || len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return w, nil
	}

	inner := []byte(body)
	if body[0] == '"' {
		var s string
		if err := json.Unmarshal(body, &s); err != nil {
			return wireRequest{}, pipeline.E(pipeline.KindInvalidRequest, opParse, err)
		}
		inner = []byte(s)
	}
	return decodeWire(inner, false)
}

// cleanName reduces a display name to a single safe path segment.
func cleanName(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return "", errors.New("fileName does not name a file")
	}
	return name, nil
}
