// Package remote is the HTTP client for the vitals service. Calls are made
// once; retry is left to the next sync cycle.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/vitalsync/internal/cache"
	"github.com/kalambet/vitalsync/internal/vital"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Client talks to the remote vitals API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// NewClient creates a client for baseURL authenticating with token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		token:   token,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		userAgent: "vitalsync",
	}
}

// NewClientWithHTTPClient creates a client using hc (for tests and custom transports).
func NewClientWithHTTPClient(baseURL, token string, hc *http.Client) *Client {
	c := NewClient(baseURL, token)
	c.httpClient = hc
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// GetVitals returns remote records changed since the given time.
func (c *Client) GetVitals(ctx context.Context, since time.Time, includeDeleted bool) ([]RemoteVital, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	if includeDeleted {
		q.Set("includeDeleted", "true")
	}

	var resp vitalsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/vitals?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching remote vitals: %w", err)
	}
	if resp.Vitals == nil {
		return []RemoteVital{}, nil
	}
	return resp.Vitals, nil
}

// UploadVitalsBatch sends vitals in a single request.
func (c *Client) UploadVitalsBatch(ctx context.Context, vitals []UploadVital) (BatchResult, error) {
	var res BatchResult
	if err := c.doJSON(ctx, http.MethodPost, "/vitals/batch", batchRequest{Vitals: vitals}, &res); err != nil {
		return BatchResult{}, fmt.Errorf("uploading vitals: %w", err)
	}
	return res, nil
}

// DeleteVitals propagates local deletions of previously synced records.
func (c *Client) DeleteVitals(ctx context.Context, deletes []RemoteDelete) error {
	if err := c.doJSON(ctx, http.MethodPost, "/vitals/delete", deleteRequest{Deletes: deletes}, nil); err != nil {
		return fmt.Errorf("deleting remote vitals: %w", err)
	}
	return nil
}

// Ping checks that the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/health", nil, nil)
}

// Replay performs a request queued while offline. Relative URLs are resolved
// against the base URL.
func (c *Client) Replay(ctx context.Context, r cache.Request) error {
	target := r.URL
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("replaying %s %s: %v: %w", r.Method, r.URL, err, vital.ErrNetwork)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("executing request: %v: %w", err, vital.ErrNetwork)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// checkStatus maps 429 and 5xx to vital.ErrNetwork and other failures to *APIError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := readErrorMessage(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("status %d %s: %w", resp.StatusCode, msg, vital.ErrNetwork)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

// readErrorMessage extracts {"error":{"message":...}} or {"message":...}
// bodies and falls back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &nested) == nil {
		if nested.Error.Message != "" {
			return nested.Error.Message
		}
		if nested.Message != "" {
			return nested.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)
}

// IsNetworkError reports whether err is transient and should be retried on
// the next cycle.
func IsNetworkError(err error) bool {
	return errors.Is(err, vital.ErrNetwork)
}
