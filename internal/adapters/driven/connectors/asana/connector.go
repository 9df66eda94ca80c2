// Package asana connects the sync engine to tasks of an Asana project.
package asana

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors/rest"
	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Connector = (*Connector)(nil)

const taskFields = "gid,name,notes,completed,modified_at"

// Connector reads and writes Asana tasks. Native items are task objects
// keyed by gid.
type Connector struct {
	name   string
	cfg    Config
	client *rest.Client
}

// New creates an Asana connector registered under name.
func New(name string, cfg Config) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &Connector{
		name: name,
		cfg:  cfg,
		client: rest.New(rest.Config{
			BaseURL:      cfg.BaseURL,
			Auth:         rest.BearerAuth(cfg.Token),
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			HTTPClient:   cfg.HTTPClient,
		}),
	}, nil
}

func (c *Connector) Name() string    { return c.name }
func (c *Connector) IDField() string { return "gid" }
func (c *Connector) Client() any     { return c.client }

func (c *Connector) IsComplete(item domain.NativeItem) bool {
	return item.Bool("completed")
}

// FieldRules maps gid, name, notes and completed.
func (c *Connector) FieldRules() domain.FieldRules {
	return domain.FieldRules{
		domain.FieldID: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.ID = src.String("gid") },
			ToNative: func(src domain.GenericItem, dst domain.NativeItem) {
				if src.ID != "" {
					dst["gid"] = src.ID
				}
			},
		},
		domain.FieldTitle: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.Title = src.String("name") },
			ToNative:  func(src domain.GenericItem, dst domain.NativeItem) { dst["name"] = src.Title },
		},
		domain.FieldDescription: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.Description = src.String("notes") },
			ToNative:  func(src domain.GenericItem, dst domain.NativeItem) { dst["notes"] = src.Description },
		},
		domain.FieldComplete: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) {
				dst.Complete = domain.CompletionOf(c.IsComplete(src))
			},
			ToNative: func(src domain.GenericItem, dst domain.NativeItem) { dst["completed"] = src.Complete.Bool() },
		},
	}
}

type taskPage struct {
	Data     []domain.NativeItem `json:"data"`
	NextPage *struct {
		Offset string `json:"offset"`
	} `json:"next_page"`
}

type taskEnvelope struct {
	Data domain.NativeItem `json:"data"`
}

// listTasks pages through the tasks of the scope project.
func (c *Connector) listTasks(ctx context.Context, query url.Values) ([]domain.NativeItem, error) {
	query.Set("project", c.cfg.Projects[0])
	query.Set("limit", strconv.Itoa(c.cfg.PageSize))

	var tasks []domain.NativeItem
	for pages := 0; ; pages++ {
		if pages == c.cfg.MaxPages {
			return nil, fmt.Errorf("task listing exceeded %d pages", c.cfg.MaxPages)
		}
		var page taskPage
		if err := c.client.Do(ctx, http.MethodGet, "/tasks", query, nil, &page); err != nil {
			return nil, err
		}
		tasks = append(tasks, page.Data...)
		if page.NextPage == nil || page.NextPage.Offset == "" {
			return tasks, nil
		}
		query.Set("offset", page.NextPage.Offset)
	}
}

// FetchChanged returns tasks of the scope project modified at or after since.
func (c *Connector) FetchChanged(ctx context.Context, since int64) ([]domain.NativeItem, error) {
	tasks, err := c.listTasks(ctx, url.Values{
		"opt_fields":     {taskFields},
		"modified_since": {time.Unix(since, 0).UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return nil, fmt.Errorf("list modified tasks: %w", err)
	}
	return tasks, nil
}

// Create adds a task to the workspace and every configured project.
func (c *Connector) Create(ctx context.Context, payload domain.NativeItem) (domain.NativeItem, error) {
	task := writable(payload)
	task["workspace"] = c.cfg.Workspace
	task["projects"] = c.cfg.Projects

	var env taskEnvelope
	if err := c.client.Do(ctx, http.MethodPost, "/tasks", url.Values{"opt_fields": {taskFields}}, taskEnvelope{Data: task}, &env); err != nil {
		return nil, c.writeErr("create", "", err)
	}
	return env.Data, nil
}

func (c *Connector) Update(ctx context.Context, id string, payload domain.NativeItem) (domain.NativeItem, error) {
	var env taskEnvelope
	if err := c.client.Do(ctx, http.MethodPut, "/tasks/"+id, url.Values{"opt_fields": {taskFields}}, taskEnvelope{Data: writable(payload)}, &env); err != nil {
		return nil, c.writeErr("update", id, err)
	}
	return env.Data, nil
}

// ListScope returns the gids of every task in the scope project.
func (c *Connector) ListScope(ctx context.Context) ([]string, error) {
	tasks, err := c.listTasks(ctx, url.Values{"opt_fields": {"gid"}})
	if err != nil {
		return nil, fmt.Errorf("list project tasks: %w", err)
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.String("gid"))
	}
	return ids, nil
}

// Delete removes a task. A task that is already gone counts as deleted.
func (c *Connector) Delete(ctx context.Context, id string) error {
	err := c.client.Do(ctx, http.MethodDelete, "/tasks/"+id, nil, nil, nil)
	if err != nil && !rest.IsNotFound(err) {
		return c.writeErr("delete", id, err)
	}
	return nil
}

func (c *Connector) writeErr(op, id string, err error) error {
	return &domain.RemoteWriteError{Service: c.name, Op: op, ID: id, Status: rest.StatusOf(err), Err: err}
}

// writable copies payload without the read-only gid.
func writable(payload domain.NativeItem) domain.NativeItem {
	out := payload.Clone()
	delete(out, "gid")
	return out
}
