package services

import (
	"context"
	"errors"
	"time"

	"github.com/custodia-labs/tasksync/internal/core/domain"
	"github.com/custodia-labs/tasksync/internal/core/ports/driven"
	"github.com/custodia-labs/tasksync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.AuthService = (*authService)(nil)

const defaultTokenTTL = 24 * time.Hour

type authService struct {
	tokens driven.TokenService
	now    func() time.Time
}

// NewAuthService creates an operator token service.
func NewAuthService(tokens driven.TokenService) driving.AuthService {
	return &authService{tokens: tokens, now: time.Now}
}

func (s *authService) IssueToken(subject string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, domain.ErrInvalidInput
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	token, err := s.tokens.GenerateToken(&domain.TokenClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	if claims.ExpiresAt != 0 && s.now().Unix() > claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}

	return &domain.AuthContext{Subject: claims.Subject}, nil
}
