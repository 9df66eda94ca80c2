package zendesk

import (
	"fmt"
	"net/http"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// Config contains configuration for the Zendesk connector.
type Config struct {
	// BaseURL is the account URL, e.g. https://acme.zendesk.com.
	BaseURL string

	// Username is the agent email; API token auth uses "{Username}/token".
	Username string
	Token    string

	// AgentURL prefixes the ticket link appended to generic descriptions.
	// Defaults to BaseURL.
	AgentURL string

	// Concurrency bounds parallel full-ticket fetches (default 4).
	Concurrency int

	// MaxPages stops runaway paging (default 1000).
	MaxPages int

	MaxRetries   int
	RetryBackoff time.Duration
	HTTPClient   *http.Client
}

// Validate checks the required settings.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: zendesk base url is required", domain.ErrInvalidInput)
	case c.Username == "" || c.Token == "":
		return fmt.Errorf("%w: zendesk username and token are required", domain.ErrInvalidInput)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.AgentURL == "" {
		c.AgentURL = c.BaseURL
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 1000
	}
}
