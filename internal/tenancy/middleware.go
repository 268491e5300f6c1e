package tenancy

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/pkg/response"
)

const (
	// ContextCityID is the gin context key holding the guarded city id (uuid.UUID).
	ContextCityID = "city_id"
	// ContextTenantSource is the gin context key holding the resolution source (string).
	ContextTenantSource = "tenant_source"

	msgUnknownCity   = "unknown city"
	msgNotAuthorized = "not authorized for this city"
)

// HTTPConfig names the request inputs and response headers used by the middleware.
type HTTPConfig struct {
	OverrideHeader string
	PathParam      string

	CityHeader     string
	TimezoneHeader string
	KeyHeader      string

	SelectionCookie string
	SelectionQuery  string

	// RequestIDKey is the gin context key the request id middleware stores under.
	RequestIDKey string
}

// DefaultHTTPConfig returns the stock header and parameter names.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		OverrideHeader:  "X-City",
		PathParam:       "city",
		CityHeader:      "X-Tenant-City",
		TimezoneHeader:  "X-Tenant-Timezone",
		KeyHeader:       "X-Tenant-Key",
		SelectionCookie: "admin_city",
		SelectionQuery:  "city",
		RequestIDKey:    "request_id",
	}
}

// SignalsFromRequest extracts tenant signals from a gin request.
func SignalsFromRequest(c *gin.Context, cfg HTTPConfig) Signals {
	s := Signals{
		Host:    c.Request.Host,
		TraceID: traceID(c),
	}
	if cfg.OverrideHeader != "" {
		s.Header = c.GetHeader(cfg.OverrideHeader)
	}
	if cfg.PathParam != "" {
		s.Path = c.Param(cfg.PathParam)
	}
	if cfg.RequestIDKey != "" {
		s.RequestID = c.GetString(cfg.RequestIDKey)
	}
	return s
}

// Middleware resolves the tenant of every request and rejects requests without one.
func Middleware(r *Resolver, cfg HTTPConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := r.Resolve(c.Request.Context(), SignalsFromRequest(c, cfg))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		attach(c, t)
		SetHeaders(c, cfg, t)
		c.Next()
	}
}

// OptionalMiddleware resolves the tenant when the signals allow it and otherwise
// continues without one. The admin surface uses it ahead of GuardMiddleware.
func OptionalMiddleware(r *Resolver, cfg HTTPConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		t, err := r.Resolve(c.Request.Context(), SignalsFromRequest(c, cfg))
		if err != nil {
			logger.Debug("no generic tenant for admin request", zap.Error(err))
			c.Next()
			return
		}
		attach(c, t)
		c.Next()
	}
}

// GuardMiddleware applies the staff lock. It must run after authentication.
func GuardMiddleware(g *Guard, cfg HTTPConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromGin(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		generic, _ := FromGin(c)
		sig := SignalsFromRequest(c, cfg)
		t, err := g.Resolve(c.Request.Context(), GuardRequest{
			Identity:  identity,
			Selection: Selection(c, cfg),
			Generic:   generic,
			RequestID: sig.RequestID,
			TraceID:   sig.TraceID,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		attach(c, t)
		c.Set(ContextCityID, t.CityID())
		c.Set(ContextTenantSource, string(t.Source))
		SetHeaders(c, cfg, t)
		c.Next()
	}
}

// Selection returns the admin city selection: query parameter first, then cookie.
func Selection(c *gin.Context, cfg HTTPConfig) string {
	if cfg.SelectionQuery != "" {
		if v := strings.TrimSpace(c.Query(cfg.SelectionQuery)); v != "" {
			return v
		}
	}
	if cfg.SelectionCookie != "" {
		if v, err := c.Cookie(cfg.SelectionCookie); err == nil {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// SetHeaders decorates the response with the tenant identity headers.
func SetHeaders(c *gin.Context, cfg HTTPConfig, t *ResolvedTenant) {
	if cfg.CityHeader != "" {
		c.Header(cfg.CityHeader, t.City.Slug)
	}
	if cfg.TimezoneHeader != "" {
		c.Header(cfg.TimezoneHeader, t.Timezone)
	}
	if cfg.KeyHeader != "" {
		c.Header(cfg.KeyHeader, t.Key)
	}
}

// AbortWithError maps a resolution error to a response that does not reveal
// whether any other city exists.
func AbortWithError(c *gin.Context, err error) {
	if errors.Is(err, ErrGuardDenied) {
		response.Forbidden(c, msgNotAuthorized)
	} else {
		response.NotFound(c, msgUnknownCity)
	}
	c.Abort()
}

// traceID reads the W3C traceparent trace id, falling back to X-Trace-ID.
func traceID(c *gin.Context) string {
	if tp := c.GetHeader("traceparent"); tp != "" {
		parts := strings.Split(tp, "-")
		if len(parts) == 4 && len(parts[1]) == 32 {
			return parts[1]
		}
	}
	return c.GetHeader("X-Trace-ID")
}
