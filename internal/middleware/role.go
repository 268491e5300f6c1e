package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/response"
)

// RequireGlobal allows only staff that may act on every city.
func RequireGlobal() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenancy.IdentityFromGin(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, global := id.(tenancy.GlobalStaff); !global {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireStaff rejects citizens before any admin handler runs.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := tenancy.IdentityFromGin(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if _, citizen := id.(tenancy.Citizen); citizen {
			tenancy.AbortWithError(c, tenancy.ErrGuardDenied)
			return
		}
		c.Next()
	}
}
