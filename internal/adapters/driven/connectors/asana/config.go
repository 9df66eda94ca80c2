package asana

import (
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// DefaultBaseURL is the public Asana API.
const DefaultBaseURL = "https://app.asana.com/api/1.0"

// Config contains configuration for the Asana connector.
type Config struct {
	BaseURL string

	// Token is a personal access token.
	Token string

	// Workspace receives created tasks.
	Workspace string

	// Projects are attached to created tasks. The first one is the scope
	// fetched, listed and purged.
	Projects []string

	// PageSize is the page limit for task listings (1-100, default 100).
	PageSize int

	// MaxPages stops runaway paging (default 1000).
	MaxPages int

	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// Validate checks the required settings.
func (c *Config) Validate() error {
	switch {
	case c.Token == "":
		return fmt.Errorf("%w: asana token is required", domain.ErrInvalidInput)
	case c.Workspace == "":
		return fmt.Errorf("%w: asana workspace is required", domain.ErrInvalidInput)
	case len(c.Projects) == 0 || c.Projects[0] == "":
		return fmt.Errorf("%w: at least one asana project is required", domain.ErrInvalidInput)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 1000
	}
}
