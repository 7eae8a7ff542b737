package intake

import (
	"errors"
	"testing"

	"github.com/your-org/vidpress/internal/pipeline"
)

func TestParseRequestShapes(t *testing.T) {
	want := Request{
		SourceURL:   "https://drive.google.com/file/d/X/view",
		DisplayName: "a.mp4",
		SizeBytes:   1_000_000_000,
		Uploader:    "sam@example.com",
	}

	payloads := map[string]string{
		"flat":        `{"fileUrl":"https://drive.google.com/file/d/X/view","fileName":"a.mp4","fileSize":1000000000,"uploader":"sam@example.com"}`,
		"string body": `{"body":"{\"fileUrl\":\"https://drive.google.com/file/d/X/view\",\"fileName\":\"a.mp4\",\"fileSize\":\"1000000000\",\"uploader\":\"sam@example.com\"}"}`,
		"object body": `{"body":{"fileUrl":"https://drive.google.com/file/d/X/view","fileName":"a.mp4","fileSize":1000000000,"uploader":"sam@example.com"}}`,
	}

	for name, raw := range payloads {
		t.Run(name, func(t *testing.T) {
			got, err := ParseRequest([]byte(raw))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != want {
				t.Fatalf("got %+v want %+v", got, want)
			}
		})
	}
}

func TestParseRequestDefaultsUploader(t *testing.T) {
	got, err := ParseRequest([]byte(`{"fileUrl":"u","fileName":"a.mp4","fileSize":0}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Uploader != "unknown" {
		t.Fatalf("unexpected uploader %q", got.Uploader)
	}
}

func TestParseRequestSanitizesName(t *testing.T) {
	got, err := ParseRequest([]byte(`{"fileUrl":"u","fileName":"../../etc\\clip.mov","fileSize":1}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.DisplayName != "clip.mov" {
		t.Fatalf("unexpected name %q", got.DisplayName)
	}
}

func TestParseRequestRejects(t *testing.T) {
	payloads := map[string]string{
		"missing fileUrl":  `{"fileName":"a.mp4","fileSize":1}`,
		"missing fileName": `{"fileUrl":"u","fileSize":1}`,
		"missing fileSize": `{"fileUrl":"u","fileName":"a.mp4"}`,
		"null fileSize":    `{"fileUrl":"u","fileName":"a.mp4","fileSize":null}`,
		"negative size":    `{"fileUrl":"u","fileName":"a.mp4","fileSize":-1}`,
		"bad size":         `{"fileUrl":"u","fileName":"a.mp4","fileSize":"big"}`,
		"dot name":         `{"fileUrl":"u","fileName":"..","fileSize":1}`,
		"not json":         `fileUrl=u`,
		"bad inner body":   `{"body":"{not json"}`,
		"empty":            `{}`,
	}

	for name, raw := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequest([]byte(raw))
			if !errors.Is(err, pipeline.ErrInvalidRequest) {
				t.Fatalf("expected InvalidRequest, got %v", err)
			}
		})
	}
}
