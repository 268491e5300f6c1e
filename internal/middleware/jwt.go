package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cidadeplus/backend/internal/auth"
	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/response"
)

// UserLookup re-reads the stored user behind a token. *auth.Repository implements it.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// JWT returns a middleware that validates JWT, sets user claims in context and
// attaches the tenancy identity derived from role and home city. When users is
// non-nil, role and home city are read from the stored user instead of the token.
func JWT(jwtService *auth.JWTService, users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			response.Unauthorized(c, "missing or invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		role, home := claims.Role, claims.HomeCityID
		if users != nil {
			u, err := users.GetByID(c.Request.Context(), claims.UserID)
			if err != nil {
				response.ServiceUnavailable(c, "user lookup failed")
				c.Abort()
				return
			}
			if u == nil {
				response.Unauthorized(c, "invalid or expired token")
				c.Abort()
				return
			}
			role, home = u.Role, u.HomeCityID
		}
		c.Set(auth.ContextUserID, claims.UserID)
		c.Set(auth.ContextUserRole, role)
		c.Set(auth.ContextUserEmail, claims.Email)
		c.Set(tenancy.ContextIdentity, tenancy.IdentityFor(claims.UserID, role, home))
		c.Next()
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a
// websocket handshake, so upgrade requests may pass the token as ?token= instead.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			if t := c.Query("token"); t != "" {
				return t, true
			}
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
