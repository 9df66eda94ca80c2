package driven

import "github.com/custodia-labs/tasksync/internal/core/domain"

// TokenService signs and verifies operator API tokens.
type TokenService interface {
	// GenerateToken signs claims.
	GenerateToken(claims *domain.TokenClaims) (string, error)

	// ParseToken verifies a token and returns its claims.
	// Returns domain.ErrTokenExpired or domain.ErrTokenInvalid on failure.
	ParseToken(token string) (*domain.TokenClaims, error)
}
