package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// AuthService issues and validates operator API tokens.
type AuthService interface {
	// IssueToken signs a token for subject valid for ttl.
	IssueToken(subject string, ttl time.Duration) (string, time.Time, error)

	// ValidateToken checks a token and returns the authenticated operator.
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)
}
