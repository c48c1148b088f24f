package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/internal/handler"
	"github.com/jwalitptl/hospital-api/internal/model"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

// Authenticator verifies an access token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Principal, error)
}

type AuthMiddleware struct {
	authService Authenticator
}

func NewAuthMiddleware(authService Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate verifies the bearer token and attaches the caller to the
// context. Browsers cannot set headers on websocket upgrades, so the
// access_token query parameter is accepted as well.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			handler.Error(c, apperrors.Unauthorized("missing authorization header", nil))
			c.Abort()
			return
		}

		principal, err := m.authService.Authenticate(c.Request.Context(), token)
		if err != nil {
			handler.Error(c, err)
			c.Abort()
			return
		}

		c.Set(handler.ContextPrincipal, *principal)
		c.Set(handler.ContextToken, token)
		c.Next()
	}
}

// RequireRole admits callers whose verified role is one of roles.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := handler.CurrentPrincipal(c)
		if !ok {
			handler.Error(c, apperrors.Unauthorized("", nil))
			c.Abort()
			return
		}
		for _, role := range roles {
			if principal.Is(role) {
				c.Next()
				return
			}
		}
		handler.Error(c, apperrors.Forbidden("permission denied", nil))
		c.Abort()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
