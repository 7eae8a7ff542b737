package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Config configures access to one Airtable table.
type Config struct {
	BaseURL     string
	BaseID      string
	Table       string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts uint
	RetryBase   time.Duration
}

// Record is an Airtable row.
type Record struct {
	ID          string         `json:"id,omitempty"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// APIError is a non-2xx response from the Airtable API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("airtable: %d %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("airtable: %d %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// UnknownField reports whether Airtable rejected a column name.
func (e *APIError) UnknownField() bool {
	return e.Type == "UNKNOWN_FIELD_NAME"
}

// Client talks to the Airtable REST API with bearer-token auth and bounded
// retries on rate limiting and server errors.
type Client struct {
	http        *http.Client
	endpoint    string
	maxAttempts uint
	retryBase   time.Duration
	logger      *zap.Logger
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, errors.New("airtable: base id and table are required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("airtable: api key is required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.airtable.com/v0"
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"}),
				Base:   transport,
			},
		},
		endpoint:    base + "/" + url.PathEscape(cfg.BaseID) + "/" + url.PathEscape(cfg.Table),
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		logger:      logger,
	}, nil
}

// FindByField returns the first record whose field equals value, or nil.
func (c *Client) FindByField(ctx context.Context, field, value string) (*Record, error) {
	q := url.Values{}
	q.Set("filterByFormula", fmt.Sprintf("{%s}='%s'", field, escapeFormula(value)))
	q.Set("maxRecords", "1")

	var out struct {
		Records []Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, "", q, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Records) == 0 {
		return nil, nil
	}
	return &out.Records[0], nil
}

// Get fetches a record by id.
func (c *Client) Get(ctx context.Context, id string) (Record, error) {
	var out Record
	err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Create inserts a record. typecast lets Airtable coerce select options and
// dates from their string form.
func (c *Client) Create(ctx context.Context, fields map[string]any) (Record, error) {
	var out Record
	err := c.do(ctx, http.MethodPost, "", nil, map[string]any{"fields": fields, "typecast": true}, &out)
	return out, err
}

// Update patches the given fields of a record, leaving others untouched.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (Record, error) {
	var out Record
	err := c.do(ctx, http.MethodPatch, "/"+url.PathEscape(id), nil, map[string]any{"fields": fields, "typecast": true}, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("airtable: marshal request: %w", err)
		}
	}

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			apiErr := decodeError(resp)
			if !apiErr.Retryable() {
				return struct{}{}, backoff.Permanent(apiErr)
			}
			if wait := retryAfter(resp); wait > 0 {
				return struct{}{}, errors.Join(apiErr, backoff.RetryAfter(wait))
			}
			return struct{}{}, apiErr
		}

		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("airtable: decode response: %w", err))
		}
		return struct{}{}, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBase
	policy.MaxInterval = 10 * c.retryBase

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(c.maxAttempts),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("airtable request failed, retrying",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	return err
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	// Airtable reports errors either as {"error":{"type","message"}} or as
	// {"error":"TYPE"}.
	var structured struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Error.Type != "" {
		apiErr.Type = structured.Error.Type
		if structured.Error.Message != "" {
			apiErr.Message = structured.Error.Message
		}
		return apiErr
	}
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Error != "" {
		apiErr.Type = flat.Error
	}
	return apiErr
}

func retryAfter(resp *http.Response) int {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}

func escapeFormula(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
