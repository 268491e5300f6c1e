package incidents

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/response"
)

const maxSummaryMinutes = 7 * 24 * 60

// Store is the incident storage the handler needs.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]*models.TenantIncident, error)
	Acknowledge(ctx context.Context, id uuid.UUID, cityID *uuid.UUID, at time.Time) (*models.TenantIncident, error)
}

// Summarizer produces incident summaries.
type Summarizer interface {
	Summarize(ctx context.Context, window time.Duration) (*Summary, error)
}

// Handler handles incident endpoints of the admin surface.
type Handler struct {
	store    Store
	reporter Summarizer
	window   time.Duration
	logger   *zap.Logger
}

// NewHandler creates an incidents handler. window is the default summary window.
func NewHandler(store Store, reporter Summarizer, window time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Handler{store: store, reporter: reporter, window: window, logger: logger}
}

// scope returns the city a non-global caller is confined to, or nil for global staff.
func scope(c *gin.Context) *uuid.UUID {
	if id, ok := tenancy.IdentityFromGin(c); ok {
		if _, global := id.(tenancy.GlobalStaff); global {
			return nil
		}
	}
	cityID := c.MustGet(tenancy.ContextCityID).(uuid.UUID)
	return &cityID
}

// List handles GET /admin/incidents.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{
		CityID:         scope(c),
		Type:           c.Query("type"),
		Unacknowledged: c.Query("unacknowledged") == "true",
	}
	if f.CityID == nil {
		if v := c.Query("city_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				response.BadRequest(c, "invalid city_id")
				return
			}
			f.CityID = &id
		}
	}
	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(c, "since must be RFC3339")
			return
		}
		f.Since = t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		f.Limit = n
	}
	list, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list incidents", zap.Error(err))
		response.Internal(c, "failed to list incidents")
		return
	}
	response.OK(c, list)
}

// Acknowledge handles POST /admin/incidents/:id/ack.
func (h *Handler) Acknowledge(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid incident id")
		return
	}
	inc, err := h.store.Acknowledge(c.Request.Context(), id, scope(c), time.Now())
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "incident not found")
	case errors.Is(err, ErrAlreadyAcknowledged):
		response.Conflict(c, "incident already acknowledged")
	case err != nil:
		h.logger.Error("acknowledge incident", zap.String("id", id.String()), zap.Error(err))
		response.Internal(c, "failed to acknowledge incident")
	default:
		response.OK(c, inc)
	}
}

// Summary handles GET /admin/incidents/summary?minutes=N.
func (h *Handler) Summary(c *gin.Context) {
	window := h.window
	if v := c.Query("minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxSummaryMinutes {
			response.BadRequest(c, "minutes must be between 1 and 10080")
			return
		}
		window = time.Duration(n) * time.Minute
	}
	s, err := h.reporter.Summarize(c.Request.Context(), window)
	if err != nil {
		h.logger.Error("summarize incidents", zap.Error(err))
		response.Internal(c, "failed to summarize incidents")
		return
	}
	if cityID := scope(c); cityID != nil {
		s = s.ForCity(*cityID)
	}
	response.OK(c, s)
}
