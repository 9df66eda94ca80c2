// Package zendesk connects the sync engine to Zendesk tickets.
package zendesk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors/rest"
	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Connector = (*Connector)(nil)

const (
	statusOpen   = "open"
	statusSolved = "solved"
)

var completeStatus = regexp.MustCompile(`(?i)closed|solved`)

// Connector reads and writes Zendesk tickets. Native items are ticket
// objects: id, subject, description, status and whatever else the API
// returns.
type Connector struct {
	name   string
	cfg    Config
	client *rest.Client
}

// New creates a Zendesk connector registered under name.
func New(name string, cfg Config) (*Connector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &Connector{
		name: name,
		cfg:  cfg,
		client: rest.New(rest.Config{
			BaseURL:      strings.TrimSuffix(cfg.BaseURL, "/") + "/api/v2",
			Auth:         rest.BasicAuth(cfg.Username+"/token", cfg.Token),
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			HTTPClient:   cfg.HTTPClient,
		}),
	}, nil
}

func (c *Connector) Name() string    { return c.name }
func (c *Connector) IDField() string { return "id" }
func (c *Connector) Client() any     { return c.client }

// IsComplete reports whether the ticket status is closed or solved.
func (c *Connector) IsComplete(item domain.NativeItem) bool {
	return completeStatus.MatchString(item.String("status"))
}

// FieldRules maps tickets to generic items. The generic description carries
// a link back to the ticket in the agent UI, which is stripped again on the
// way back. Create turns the description into the ticket's first comment.
func (c *Connector) FieldRules() domain.FieldRules {
	return domain.FieldRules{
		domain.FieldID: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.ID = src.String("id") },
			ToNative: func(src domain.GenericItem, dst domain.NativeItem) {
				if src.ID != "" {
					dst["id"] = src.ID
				}
			},
		},
		domain.FieldTitle: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) { dst.Title = src.String("subject") },
			ToNative:  func(src domain.GenericItem, dst domain.NativeItem) { dst["subject"] = src.Title },
		},
		domain.FieldDescription: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) {
				dst.Description = src.String("description")
				if id := src.String("id"); id != "" {
					dst.Description += "\n\n" + c.ticketLink(id)
				}
			},
			ToNative: func(src domain.GenericItem, dst domain.NativeItem) {
				dst["description"] = src.Description
				if src.ID != "" {
					dst["description"] = strings.TrimSuffix(src.Description, "\n\n"+c.ticketLink(src.ID))
				}
			},
		},
		domain.FieldComplete: {
			ToGeneric: func(src domain.NativeItem, dst *domain.GenericItem) {
				dst.Complete = domain.CompletionOf(c.IsComplete(src))
			},
			ToNative: func(src domain.GenericItem, dst domain.NativeItem) {
				if src.Complete.Bool() {
					dst["status"] = statusSolved
				} else {
					dst["status"] = statusOpen
				}
			},
		},
	}
}

func (c *Connector) ticketLink(id string) string {
	return strings.TrimSuffix(c.cfg.AgentURL, "/") + "/agent/#/tickets/" + id
}

type exportPage struct {
	Tickets     []domain.NativeItem `json:"tickets"`
	NextPage    string              `json:"next_page"`
	EndOfStream bool                `json:"end_of_stream"`
}

type ticketEnvelope struct {
	Ticket domain.NativeItem `json:"ticket"`
}

// FetchChanged walks the incremental ticket export from since. Deleted
// tickets are dropped. Tickets exported without a description are
// re-read in full; a ticket deleted in between is skipped.
func (c *Connector) FetchChanged(ctx context.Context, since int64) ([]domain.NativeItem, error) {
	var tickets []domain.NativeItem
	path := "/incremental/tickets.json"
	query := url.Values{"start_time": {strconv.FormatInt(since, 10)}}

	for pages := 0; path != ""; pages++ {
		if pages == c.cfg.MaxPages {
			return nil, fmt.Errorf("ticket export exceeded %d pages", c.cfg.MaxPages)
		}

		var page exportPage
		if err := c.client.Do(ctx, http.MethodGet, path, query, nil, &page); err != nil {
			return nil, fmt.Errorf("export tickets: %w", err)
		}
		for _, t := range page.Tickets {
			if t.String("status") != "deleted" {
				tickets = append(tickets, t)
			}
		}

		if page.EndOfStream || page.NextPage == "" || page.NextPage == path {
			break
		}
		path, query = page.NextPage, nil
	}

	return c.hydrate(ctx, tickets)
}

func (c *Connector) hydrate(ctx context.Context, tickets []domain.NativeItem) ([]domain.NativeItem, error) {
	full := make([]domain.NativeItem, len(tickets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, t := range tickets {
		if _, ok := t["description"]; ok {
			full[i] = t
			continue
		}
		g.Go(func() error {
			var env ticketEnvelope
			err := c.client.Do(gctx, http.MethodGet, "/tickets/"+t.String("id")+".json", nil, nil, &env)
			if rest.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get ticket %s: %w", t.String("id"), err)
			}
			full[i] = env.Ticket
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := full[:0]
	for _, t := range full {
		if t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

// Create opens a ticket.
func (c *Connector) Create(ctx context.Context, payload domain.NativeItem) (domain.NativeItem, error) {
	ticket := writable(payload)
	if _, ok := ticket["comment"]; !ok {
		if d, ok := ticket["description"]; ok {
			ticket["comment"] = map[string]any{"body": d}
		}
	}
	delete(ticket, "description")
	var env ticketEnvelope
	if err := c.client.Do(ctx, http.MethodPost, "/tickets.json", nil, ticketEnvelope{Ticket: ticket}, &env); err != nil {
		return nil, c.writeErr("create", "", err)
	}
	return env.Ticket, nil
}

// Update changes a ticket. The description is fixed once the ticket exists,
// so neither it nor a comment is sent.
func (c *Connector) Update(ctx context.Context, id string, payload domain.NativeItem) (domain.NativeItem, error) {
	ticket := writable(payload)
	delete(ticket, "comment")
	delete(ticket, "description")
	var env ticketEnvelope
	if err := c.client.Do(ctx, http.MethodPut, "/tickets/"+id+".json", nil, ticketEnvelope{Ticket: ticket}, &env); err != nil {
		return nil, c.writeErr("update", id, err)
	}
	return env.Ticket, nil
}

type listPage struct {
	Tickets  []domain.NativeItem `json:"tickets"`
	NextPage string              `json:"next_page"`
}

// ListScope returns the ids of every ticket in the account.
func (c *Connector) ListScope(ctx context.Context) ([]string, error) {
	var ids []string
	path := "/tickets.json"
	for pages := 0; path != ""; pages++ {
		if pages == c.cfg.MaxPages {
			return nil, fmt.Errorf("ticket list exceeded %d pages", c.cfg.MaxPages)
		}
		var page listPage
		if err := c.client.Do(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
			return nil, fmt.Errorf("list tickets: %w", err)
		}
		for _, t := range page.Tickets {
			ids = append(ids, t.String("id"))
		}
		path = page.NextPage
	}
	return ids, nil
}

// Delete removes a ticket. A ticket that is already gone counts as deleted.
func (c *Connector) Delete(ctx context.Context, id string) error {
	err := c.client.Do(ctx, http.MethodDelete, "/tickets/"+id+".json", nil, nil, nil)
	if err != nil && !rest.IsNotFound(err) {
		return c.writeErr("delete", id, err)
	}
	return nil
}

func (c *Connector) writeErr(op, id string, err error) error {
	return &domain.RemoteWriteError{Service: c.name, Op: op, ID: id, Status: rest.StatusOf(err), Err: err}
}

// writable copies payload without the read-only id.
func writable(payload domain.NativeItem) domain.NativeItem {
	out := payload.Clone()
	delete(out, "id")
	return out
}
