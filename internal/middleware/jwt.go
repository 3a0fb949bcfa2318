package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/auth-api/internal/models"
	appErrors "github.com/noah-isme/auth-api/pkg/errors"
	"github.com/noah-isme/auth-api/pkg/response"
)

const (
	// ContextPrincipalKey is the gin context key storing the authenticated principal.
	ContextPrincipalKey = "principal"
	// ContextTokenKey is the gin context key storing the raw bearer token.
	ContextTokenKey = "bearerToken"
)

type tokenAuthenticator interface {
	Authenticate(ctx context.Context, token string, required models.TokenKind) (*models.Principal, error)
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// JWT protects routes by requiring a valid, unrevoked access token.
func JWT(auth tokenAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			response.Error(c, appErrors.ErrNotAuthenticated)
			c.Abort()
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), token, models.TokenKindAccess)
		if err != nil {
			_ = c.Error(err)
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Set(ContextTokenKey, token)
		c.Next()
	}
}

// RequireFresh rejects access tokens minted by a refresh rather than a
// password login. It must run after JWT.
func RequireFresh() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok || !principal.Fresh {
			_ = c.Error(appErrors.ErrFreshTokenRequired)
			response.Error(c, appErrors.ErrFreshTokenRequired)
			c.Abort()
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the principal stored by JWT.
func PrincipalFrom(c *gin.Context) (*models.Principal, bool) {
	value, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok && principal != nil
}
