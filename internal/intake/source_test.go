package intake

import (
	"errors"
	"net/url"
	"testing"

	"github.com/your-org/vidpress/internal/pipeline"
)

func TestExtractFileID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "file path", in: "https://drive.google.com/file/d/ABC123/view", want: "ABC123"},
		{name: "file path with query", in: "https://drive.google.com/file/d/ABC123/view?usp=sharing", want: "ABC123"},
		{name: "file path no suffix", in: "https://drive.google.com/file/d/a-b_C9", want: "a-b_C9"},
		{name: "id query", in: "https://drive.google.com/open?id=ABC123&other=1", want: "ABC123"},
		{name: "id query not first", in: "https://drive.google.com/uc?export=download&id=ABC123", want: "ABC123"},
		{name: "folder link", in: "https://drive.google.com/drive/folders/ABC123", wantErr: true},
		{name: "empty id", in: "https://drive.google.com/open?id=", wantErr: true},
		{name: "garbage", in: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractFileID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, pipeline.ErrInvalidSourceURL) {
					t.Fatalf("expected InvalidSourceUrl, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestDirectURL(t *testing.T) {
	raw := DirectURL("https://drive.google.com/uc", "ABC123")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Host != "drive.google.com" || u.Path != "/uc" {
		t.Fatalf("unexpected url %q", raw)
	}
	q := u.Query()
	if q.Get("id") != "ABC123" || q.Get("export") != "download" || q.Get("confirm") != "t" {
		t.Fatalf("unexpected query %v", q)
	}
}
