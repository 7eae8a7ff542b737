package intake

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/your-org/vidpress/internal/pipeline"
)

var fileIDPath = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)

// ExtractFileID pulls the drive file id out of a sharing link of the form
// .../file/d/{id}/... or ...?id={id}.
func ExtractFileID(sourceURL string) (string, error) {
	if m := fileIDPath.FindStringSubmatch(sourceURL); m != nil {
		return m[1], nil
	}
	if u, err := url.Parse(sourceURL); err == nil {
		if id := strings.TrimSpace(u.Query().Get("id")); id != "" {
			return id, nil
		}
	}
	return "", pipeline.Errorf(pipeline.KindInvalidSourceURL, "resolve source url", "no file id in %q", sourceURL)
}

// DirectURL builds a download link that skips the sharing page, including
// the large-file scan interstitial.
func DirectURL(baseURL, fileID string) string {
	q := url.Values{}
	q.Set("export", "download")
	q.Set("id", fileID)
	q.Set("confirm", "t")
	return strings.TrimRight(baseURL, "?") + "?" + q.Encode()
}
