package domain

import "time"

// TokenClaims is the operator token payload.
type TokenClaims struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// IsExpired reports whether the claims have expired.
func (c *TokenClaims) IsExpired() bool {
	return c.ExpiresAt != 0 && time.Now().Unix() >= c.ExpiresAt
}

// AuthContext carries the authenticated operator for a request.
type AuthContext struct {
	Subject string `json:"subject"`
}
