package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind distinguishes access tokens from refresh tokens.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindAccess || k == TokenKindRefresh
}

// TokenTypeBearer is the token_type returned with every issued token.
const TokenTypeBearer = "bearer"

// TokenClaims is the signed payload of access and refresh tokens. Kind and
// Fresh never change after issuance.
type TokenClaims struct {
	Kind  TokenKind `json:"type"`
	Fresh bool      `json:"fresh"`
	jwt.RegisteredClaims
}

// Expiry returns the expiry instant and whether the claim is present.
func (c *TokenClaims) Expiry() (time.Time, bool) {
	if c.ExpiresAt == nil {
		return time.Time{}, false
	}
	return c.ExpiresAt.Time, true
}

// Principal is the authenticated subject threaded through protected calls.
type Principal struct {
	AccountID string
	TokenID   string
	Kind      TokenKind
	Fresh     bool
	ExpiresAt *time.Time
}

// Tokens is returned by a successful password login.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// AccessToken is returned by a refresh.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
