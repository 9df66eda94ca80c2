// Package rest is the JSON-over-HTTP plumbing shared by the connectors:
// authenticated requests, retries on rate limits and server errors, and
// detection of error payloads returned with a 2xx status.
package rest

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Authorizer decorates a request with credentials.
type Authorizer func(req *http.Request)

// BasicAuth authenticates with a username and password.
func BasicAuth(username, password string) Authorizer {
	return func(req *http.Request) { req.SetBasicAuth(username, password) }
}

// BearerAuth authenticates with a bearer token.
func BearerAuth(token string) Authorizer {
	return func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
}

// Config holds client settings.
type Config struct {
	// BaseURL is prefixed to every relative path.
	BaseURL string

	Auth Authorizer

	// MaxRetries bounds retries of 429 and 5xx responses (default 3).
	MaxRetries int

	// RetryBackoff is the base wait between retries, multiplied by the
	// attempt number (default 1s).
	RetryBackoff time.Duration

	// MaxRetryAfter caps a server-requested Retry-After wait (default 1m).
	MaxRetryAfter time.Duration

	// HTTPClient overrides the default client with a 30s timeout.
	HTTPClient *http.Client
}

// Client performs JSON requests against one API.
type Client struct {
	baseURL       string
	auth          Authorizer
	httpClient    *http.Client
	maxRetries    int
	retryBackoff  time.Duration
	maxRetryAfter time.Duration
}

// New creates a client.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		auth:          cfg.Auth,
		httpClient:    cfg.HTTPClient,
		maxRetries:    cfg.MaxRetries,
		retryBackoff:  cfg.RetryBackoff,
		maxRetryAfter: cfg.MaxRetryAfter,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.maxRetries == 0 {
		c.maxRetries = 3
	}
	if c.retryBackoff == 0 {
		c.retryBackoff = time.Second
	}
	if c.maxRetryAfter == 0 {
		c.maxRetryAfter = time.Minute
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// EmbeddedError is a 2xx response whose body carries an error payload.
type EmbeddedError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *EmbeddedError) Error() string {
	return fmt.Sprintf("%s %s: error payload in %d response: %s", e.Method, e.Path, e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	var ee *EmbeddedError
	if errors.As(err, &ee) {
		return ee.Status
	}
	return 0
}

// Do sends in as a JSON body (when non-nil) and decodes the response into
// out (when non-nil). path may be absolute, as returned by paging links.
// Numbers in the response decode as json.Number.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	resp, err := c.doRequest(ctx, method, c.resolve(path, query), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if msg, ok := embeddedError(body); ok {
		return &EmbeddedError{Method: method, Path: path, Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + path
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

// doRequest performs an authenticated request, retrying rate limits and
// server errors.
func (c *Client) doRequest(ctx context.Context, method, target string, payload []byte) (*http.Response, error) {
	var resp *http.Response
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.auth != nil {
			c.auth(req)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt == c.maxRetries {
			break
		}

		wait := time.Duration(attempt+1) * c.retryBackoff
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				wait = min(time.Duration(secs)*time.Second, c.maxRetryAfter)
			}
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Method: method, Path: target, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// embeddedError extracts a message from a top-level "error" or "errors"
// member of a JSON object.
func embeddedError(body []byte) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", false
	}
	for _, key := range []string{"error", "errors"} {
		raw, ok := obj[key]
		if !ok || string(raw) == "null" {
			continue
		}
		return errorMessage(raw), true
	}
	return "", false
}

func errorMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 && list[0].Message != "" {
		msgs := make([]string, 0, len(list))
		for _, e := range list {
			msgs = append(msgs, e.Message)
		}
		return strings.Join(msgs, "; ")
	}
	var obj struct {
		Message string `json:"message"`
		Title   string `json:"title"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if msg := cmp.Or(obj.Message, obj.Title); msg != "" {
			return msg
		}
	}
	return string(raw)
}
