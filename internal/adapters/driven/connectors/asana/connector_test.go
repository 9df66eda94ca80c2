package asana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

func newTestConnector(t *testing.T, handler http.Handler) *Connector {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New("asana", Config{
		BaseURL:      srv.URL,
		Token:        "pat",
		Workspace:    "111",
		Projects:     []string{"222", "333"},
		PageSize:     2,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNew_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no token", Config{Workspace: "1", Projects: []string{"2"}}},
		{"no workspace", Config{Token: "t", Projects: []string{"2"}}},
		{"no projects", Config{Token: "t", Workspace: "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("asana", tt.cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	c, err := New("asana", Config{Token: "t", Workspace: "1", Projects: []string{"2"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
	assert.Equal(t, 100, c.cfg.PageSize)
}

func TestFetchChanged_Pages(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "222", q.Get("project"))
		assert.Equal(t, "2", q.Get("limit"))
		assert.Equal(t, "2023-11-14T22:13:20Z", q.Get("modified_since"))

		switch q.Get("offset") {
		case "":
			w.Write([]byte(`{"data":[{"gid":"1","name":"a","completed":false},{"gid":"2","name":"b","completed":true}],"next_page":{"offset":"tok2"}}`))
		case "tok2":
			w.Write([]byte(`{"data":[{"gid":"3","name":"c","completed":false}],"next_page":null}`))
		default:
			t.Errorf("unexpected offset %q", q.Get("offset"))
		}
	}))

	tasks, err := c.FetchChanged(context.Background(), 1700000000)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "3", tasks[2].String("gid"))
	assert.True(t, c.IsComplete(tasks[1]))
}

func TestCreate(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)

		var body struct {
			Data map[string]any `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body.Data, "gid")
		assert.Equal(t, "111", body.Data["workspace"])
		assert.Equal(t, []any{"222", "333"}, body.Data["projects"])
		assert.Equal(t, "Write report", body.Data["name"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"gid":"9001","name":"Write report","notes":"","completed":false}}`))
	}))

	created, err := c.Create(context.Background(), domain.NativeItem{"gid": "42", "name": "Write report", "notes": "", "completed": false})
	require.NoError(t, err)
	assert.Equal(t, "9001", created.String("gid"))
}

func TestCreate_EmbeddedErrors(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"assignee: No email, ID, or \"me\""}]}`))
	}))

	_, err := c.Create(context.Background(), domain.NativeItem{"name": "x"})
	var rwe *domain.RemoteWriteError
	require.ErrorAs(t, err, &rwe)
	assert.Equal(t, "asana", rwe.Service)
	assert.Contains(t, rwe.Error(), "assignee")
}

func TestUpdate(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tasks/9001", r.URL.Path)

		var body struct {
			Data map[string]any `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"name": "renamed", "completed": true}, body.Data)

		w.Write([]byte(`{"data":{"gid":"9001","name":"renamed","completed":true}}`))
	}))

	updated, err := c.Update(context.Background(), "9001", domain.NativeItem{"gid": "9001", "name": "renamed", "completed": true})
	require.NoError(t, err)
	assert.True(t, c.IsComplete(updated))
}

func TestListScopeAndDelete(t *testing.T) {
	c := newTestConnector(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			assert.Equal(t, "gid", r.URL.Query().Get("opt_fields"))
			w.Write([]byte(`{"data":[{"gid":"1"},{"gid":"2"}]}`))
		case r.URL.Path == "/tasks/2":
			http.NotFound(w, r)
		case r.URL.Path == "/tasks/3":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"errors":[{"message":"forbidden"}]}`))
		default:
			w.Write([]byte(`{"data":{}}`))
		}
	}))

	ids, err := c.ListScope(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	assert.NoError(t, c.Delete(context.Background(), "1"))
	assert.NoError(t, c.Delete(context.Background(), "2"), "missing task counts as deleted")

	err = c.Delete(context.Background(), "3")
	var rwe *domain.RemoteWriteError
	require.ErrorAs(t, err, &rwe)
	assert.Equal(t, http.StatusForbidden, rwe.Status)
}

func TestFieldRules(t *testing.T) {
	c := newTestConnector(t, http.NotFoundHandler())
	rules := c.FieldRules()

	var g domain.GenericItem
	for _, field := range domain.DefaultFieldMap {
		rules[field].ToGeneric(domain.NativeItem{"gid": "5", "name": "n", "notes": "d", "completed": true}, &g)
	}
	assert.Equal(t, domain.GenericItem{ID: "5", Title: "n", Description: "d", Complete: domain.Complete}, g)

	out := domain.NativeItem{}
	for _, field := range domain.DefaultFieldMap {
		rules[field].ToNative(domain.GenericItem{ID: "77", Title: "t", Description: "d", Complete: domain.Incomplete}, out)
	}
	assert.Equal(t, domain.NativeItem{"gid": "77", "name": "t", "notes": "d", "completed": false}, out)
}

func TestFieldRules_RoundTrip(t *testing.T) {
	c := newTestConnector(t, http.NotFoundHandler())
	rules := c.FieldRules()

	for _, task := range []domain.NativeItem{
		{"gid": "42", "name": "s", "notes": "d", "completed": false},
		{"gid": "43", "name": "Write report", "notes": "line one\n\nline two", "completed": true},
		{"gid": "44", "name": "", "notes": "", "completed": false},
	} {
		var g domain.GenericItem
		for _, field := range domain.DefaultFieldMap {
			rules[field].ToGeneric(task, &g)
		}
		out := domain.NativeItem{}
		for _, field := range domain.DefaultFieldMap {
			rules[field].ToNative(g, out)
		}
		assert.Equal(t, task, out)
	}
}
