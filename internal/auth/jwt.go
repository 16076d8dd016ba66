// Package auth verifies dashboard-issued affiliate session tokens. Tokens
// are HS256 JWTs signed with a secret shared with the dashboard service;
// this API never issues tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// AffiliateClaims are the claims carried by a dashboard session token.
type AffiliateClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// AffiliateID returns the affiliate the token was issued for.
func (c *AffiliateClaims) AffiliateID() string {
	return c.Subject
}

// Verifier validates affiliate session tokens.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string, returning its claims.
func (v *Verifier) Verify(tokenString string) (*AffiliateClaims, error) {
	claims := &AffiliateClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
