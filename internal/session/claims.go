package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken indicates the bearer token could not be decoded.
var ErrInvalidToken = errors.New("session: invalid token")

// Claims is the decoded identity snapshot carried by the bearer token.
// The console only decodes; cryptographic verification is the backend
// validator's job, reached through the lifecycle guard.
type Claims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	Scope []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// DecodeToken extracts claims from a bearer token without verifying the
// signature. Claims are always derived from the token at the moment it is
// stored, never recomputed later.
func DecodeToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" && strings.TrimSpace(claims.Email) == "" {
		return nil, fmt.Errorf("%w: no subject or email claim", ErrInvalidToken)
	}
	return claims, nil
}
