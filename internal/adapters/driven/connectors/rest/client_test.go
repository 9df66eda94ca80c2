package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, auth Authorizer) *Client {
	return New(Config{
		BaseURL:      srv.URL + "/",
		Auth:         auth,
		RetryBackoff: time.Millisecond,
	})
}

func TestClient_DoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/items", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "x", in["name"])

		w.Write([]byte(`{"id": 12345678901234567890, "name": "x"}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(srv, BearerAuth("tok")).Do(context.Background(), http.MethodPost, "/items",
		url.Values{"page": {"1"}}, map[string]string{"name": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), out["id"])
}

func TestClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ops@example.com/token", user)
		assert.Equal(t, "secret", pass)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestClient(srv, BasicAuth("ops@example.com/token", "secret")).
		Do(context.Background(), http.MethodDelete, "/items/1", nil, nil, nil)
	assert.NoError(t, err)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out map[string]any
	err := newTestClient(srv, nil).Do(context.Background(), http.MethodGet, "/x", nil, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, true, out["ok"])
}

func TestClient_RetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxRetryAfter: 5 * time.Millisecond})
	start := time.Now()
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/x", nil, nil, nil))
	assert.Less(t, time.Since(start), time.Second, "Retry-After must be capped")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(srv, nil).Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.Status)
	assert.Equal(t, "down", se.Body)
	assert.Equal(t, int32(4), calls.Load(), "initial attempt plus 3 retries")
}

func TestClient_ClientErrorsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	err := newTestClient(srv, nil).Do(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_EmbeddedError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"errors list", `{"errors":[{"message":"assignee: No email"},{"message":"bad project"}]}`, "assignee: No email; bad project"},
		{"error string", `{"error":"RecordInvalid"}`, "RecordInvalid"},
		{"error object", `{"error":{"title":"Forbidden","message":"no access"}}`, "no access"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			var out map[string]any
			err := newTestClient(srv, nil).Do(context.Background(), http.MethodPost, "/x", nil, map[string]string{}, &out)
			var ee *EmbeddedError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.want, ee.Message)
			assert.Equal(t, http.StatusOK, StatusOf(err))
		})
	}
}

func TestClient_NullErrorIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"gid":"1"},"errors":null}`))
	}))
	defer srv.Close()

	var out struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, newTestClient(srv, nil).Do(context.Background(), http.MethodGet, "/x", nil, nil, &out))
	assert.Equal(t, "1", out.Data["gid"])
}

func TestClient_AbsolutePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/next", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: "http://unused.invalid"})
	err := c.Do(context.Background(), http.MethodGet, srv.URL+"/next?page=2", url.Values{"limit": {"100"}}, nil, nil)
	assert.NoError(t, err)
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := New(Config{BaseURL: srv.URL, RetryBackoff: time.Hour})
	err := c.Do(ctx, http.MethodGet, "/x", nil, nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
