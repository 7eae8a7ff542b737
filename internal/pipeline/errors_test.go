package pipeline

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMatchesKindSentinel(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", E(KindTransferFailure, "stage", errors.New("connection reset")))

	if !errors.Is(err, ErrTransferFailure) {
		t.Fatal("expected transfer failure to match sentinel")
	}
	if errors.Is(err, ErrInvalidRequest) {
		t.Fatal("transfer failure must not match invalid request")
	}
	if got := KindOf(err); got != KindTransferFailure {
		t.Fatalf("unexpected kind %q", got)
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("plain errors have no kind")
	}
}

func TestErrorString(t *testing.T) {
	err := Errorf(KindInvalidSourceURL, "resolve source", "no file id in %q", "https://example.com")
	want := `resolve source: InvalidSourceUrl: no file id in "https://example.com"`
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}
