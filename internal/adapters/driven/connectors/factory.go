// Package connectors builds the remote service clients named in the
// configuration.
package connectors

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors/asana"
	"github.com/custodia-labs/tasksync/internal/adapters/driven/connectors/zendesk"
	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
)

// Connector kinds.
const (
	KindZendesk = "zendesk"
	KindAsana   = "asana"
)

// Settings is the union of every connector kind's settings. Each builder
// reads the fields it needs.
type Settings struct {
	Kind      string
	BaseURL   string
	Username  string
	Token     string
	AgentURL  string
	Workspace string
	Projects  []string

	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// Builder creates a connector registered under name.
type Builder func(name string, s Settings) (driven.Connector, error)

// Factory is a registry of builders by connector kind.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewFactory creates a factory with the zendesk and asana builders.
func NewFactory() *Factory {
	f := &Factory{builders: make(map[string]Builder)}
	f.Register(KindZendesk, buildZendesk)
	f.Register(KindAsana, buildAsana)
	return f
}

// Register adds or replaces the builder for kind.
func (f *Factory) Register(kind string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[kind] = b
}

// Create builds the connector for s.Kind.
func (f *Factory) Create(name string, s Settings) (driven.Connector, error) {
	f.mu.RLock()
	b, ok := f.builders[s.Kind]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported connector kind %q for service %s", domain.ErrInvalidInput, s.Kind, name)
	}
	c, err := b(name, s)
	if err != nil {
		return nil, fmt.Errorf("build %s connector %s: %w", s.Kind, name, err)
	}
	return c, nil
}

// SupportedKinds returns every registered kind, sorted.
func (f *Factory) SupportedKinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	kinds := make([]string, 0, len(f.builders))
	for k := range f.builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func buildZendesk(name string, s Settings) (driven.Connector, error) {
	return zendesk.New(name, zendesk.Config{
		BaseURL:      s.BaseURL,
		Username:     s.Username,
		Token:        s.Token,
		AgentURL:     s.AgentURL,
		MaxRetries:   s.MaxRetries,
		RetryBackoff: s.RetryBackoff,
		HTTPClient:   s.HTTPClient,
	})
}

func buildAsana(name string, s Settings) (driven.Connector, error) {
	return asana.New(name, asana.Config{
		BaseURL:      s.BaseURL,
		Token:        s.Token,
		Workspace:    s.Workspace,
		Projects:     s.Projects,
		MaxRetries:   s.MaxRetries,
		RetryBackoff: s.RetryBackoff,
		HTTPClient:   s.HTTPClient,
	})
}
