package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:     srv.URL + "/v0",
		BaseID:      "appTEST",
		Table:       "Processed Videos",
		APIKey:      "patSECRET",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestCreateSendsBearerTokenAndFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v0/appTEST/Processed Videos" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer patSECRET" {
			t.Errorf("unexpected authorization %q", got)
		}
		var body struct {
			Fields   map[string]any `json:"fields"`
			Typecast bool           `json:"typecast"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Fields["File Name"] != "a.mp4" || !body.Typecast {
			t.Errorf("unexpected body %+v", body)
		}
		_ = json.NewEncoder(w).Encode(Record{ID: "rec1", Fields: body.Fields})
	}))
	defer srv.Close()

	rec, err := newTestClient(t, srv).Create(context.Background(), map[string]any{"File Name": "a.mp4"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID != "rec1" {
		t.Fatalf("unexpected record id %q", rec.ID)
	}
}

func TestFindByFieldEscapesFormula(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := `{Job ID}='it\'s-1'`
		if got := r.URL.Query().Get("filterByFormula"); got != want {
			t.Errorf("formula = %q, want %q", got, want)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []Record{{ID: "rec9", Fields: map[string]any{"Job ID": "it's-1"}}},
		})
	}))
	defer srv.Close()

	rec, err := newTestClient(t, srv).FindByField(context.Background(), "Job ID", "it's-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec == nil || rec.ID != "rec9" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestFindByFieldNoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(t, srv).FindByField(context.Background(), "Job ID", "missing")
	if err != nil || rec != nil {
		t.Fatalf("expected no record and no error, got %+v %v", rec, err)
	}
}

func TestRetriesRateLimitThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"errors":[{"error":"RATE_LIMIT_REACHED"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"rec1","fields":{}}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(t, srv).Update(context.Background(), "rec1", map[string]any{"Status": "Completed"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.ID != "rec1" || calls.Load() != 3 {
		t.Fatalf("expected success on third call, got %+v after %d calls", rec, calls.Load())
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Create(context.Background(), map[string]any{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 api error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"type":"UNKNOWN_FIELD_NAME","message":"Unknown field name: \"Size\""}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Create(context.Background(), map[string]any{"Size": 1})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if !apiErr.UnknownField() || apiErr.Retryable() {
		t.Fatalf("unexpected classification %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Table: "t", APIKey: "k"}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected missing base id to fail")
	}
	if _, err := New(Config{BaseID: "b", Table: "t"}, zaptest.NewLogger(t)); err == nil {
		t.Fatal("expected missing api key to fail")
	}
}
