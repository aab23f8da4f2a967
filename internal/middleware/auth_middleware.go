package middleware

import (
	"net/http"
	"strings"

	"github.com/Baaaki/component-review/internal/models"
	"github.com/Baaaki/component-review/pkg/apperror"
	"github.com/Baaaki/component-review/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	userKey = "user"

	// TokenCookie holds the access token for browser clients
	TokenCookie = "token"
)

// Authenticator resolves a bearer token to a current, active user
type Authenticator interface {
	Authenticate(token string) (*models.User, error)
}

// RequireAuth rejects the request unless it carries a valid token for an
// active account. The user is reloaded from the database on every request.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Error(c, apperror.Unauthorized("authorization header required"))
			c.Abort()
			return
		}

		user, err := auth.Authenticate(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise
// continues anonymously.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if user, err := auth.Authenticate(token); err == nil {
				c.Set(userKey, user)
			}
		}
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth
func RequireAdmin() gin.HandlerFunc {
	return requireCapability((*models.User).IsAdmin, "admin access required")
}

// RequireValidator admits coaches and admins. Must run after RequireAuth.
func RequireValidator() gin.HandlerFunc {
	return requireCapability((*models.User).CanValidate, "coach or admin access required")
}

func requireCapability(allowed func(*models.User) bool, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, apperror.Unauthorized("authentication required"))
			c.Abort()
			return
		}
		if !allowed(user) {
			response.Error(c, apperror.Forbidden(message))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}

// bearerToken reads "Authorization: Bearer <token>", then the HTTP-only
// token cookie. Browsers cannot set headers on a websocket handshake, so
// upgrades may also pass ?token=.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header != "" {
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			return "", false
		}
		return token, true
	}

	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie != "" {
		return cookie, true
	}

	if c.Request.Method == http.MethodGet && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}
