package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS returns a middleware that sets CORS headers for cross-origin requests.
// AllowedOrigins can be "*" or a comma-separated list (e.g. "http://localhost:3000,http://localhost:3001").
// overrideHeader is the tenant override header browsers may send; exposed names are
// the tenant response headers the frontend reads.
func CORS(allowedOrigins, overrideHeader string, exposed ...string) gin.HandlerFunc {
	origins := parseOrigins(allowedOrigins)
	allowHeaders := []string{"Content-Type", "Authorization", HeaderRequestID}
	if overrideHeader != "" {
		allowHeaders = append(allowHeaders, overrideHeader)
	}
	exposeHeaders := append([]string{HeaderRequestID}, exposed...)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowOrigin := ""
		if len(origins) == 0 || origins["*"] {
			allowOrigin = "*"
		} else if origin != "" && origins[origin] {
			allowOrigin = origin
			c.Header("Vary", "Origin")
		}
		if allowOrigin != "" {
			c.Header("Access-Control-Allow-Origin", allowOrigin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", strings.Join(allowHeaders, ", "))
			c.Header("Access-Control-Expose-Headers", strings.Join(exposeHeaders, ", "))
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func parseOrigins(s string) map[string]bool {
	m := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return m
}
