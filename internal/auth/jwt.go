package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller's role and, for NGO and authority staff, the
// organisation they act for.
type Claims struct {
	Role         string `json:"role"`
	Organization string `json:"org,omitempty"`
	jwt.RegisteredClaims
}

// Identity resolves the normalised role of validated claims.
func (c *Claims) Identity() (Role, error) {
	if c == nil {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(c.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role, ok := NormalizeRole(c.Role)
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return role, nil
}

// ParseJWT verifies an HS256 token and its expiry.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: empty token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.Identity(); err != nil {
		return nil, err
	}
	claims.Organization = strings.TrimSpace(claims.Organization)
	return claims, nil
}
