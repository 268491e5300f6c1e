package directory

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/response"
)

const selectionMaxAge = 30 * 24 * 60 * 60

// Store is the directory surface the HTTP handler needs. *Service implements it.
type Store interface {
	ListCities(ctx context.Context) ([]*models.City, error)
	GetCityByID(ctx context.Context, id uuid.UUID) (*models.City, error)
	ListDomains(ctx context.Context, cityID uuid.UUID) ([]*models.CityDomain, error)
	EnabledModuleKeys(ctx context.Context, cityID uuid.UUID) ([]string, error)
	ListCityModules(ctx context.Context, cityID uuid.UUID) ([]*models.CityModule, error)

	CreateCity(ctx context.Context, c *models.City) error
	UpdateCity(ctx context.Context, id uuid.UUID, u CityUpdate) (*models.City, error)
	AddDomain(ctx context.Context, d *models.CityDomain) error
	RemoveDomain(ctx context.Context, id uuid.UUID) error
	UpsertCityModule(ctx context.Context, cm *models.CityModule) error
}

// Handler handles tenant bootstrap and directory administration endpoints.
type Handler struct {
	store  Store
	lookup tenancy.Lookup
	cfg    tenancy.HTTPConfig
	logger *zap.Logger
}

// NewHandler creates a directory handler. lookup validates admin city selections.
func NewHandler(store Store, lookup tenancy.Lookup, cfg tenancy.HTTPConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, lookup: lookup, cfg: cfg, logger: logger}
}

// BootstrapResponse is what a frontend needs to render a city.
type BootstrapResponse struct {
	City      models.City    `json:"city"`
	TenantKey string         `json:"tenant_key"`
	Timezone  string         `json:"timezone"`
	Source    tenancy.Source `json:"source"`
	Modules   []string       `json:"modules"`
}

// CreateCityRequest is the body for POST /admin/cities.
type CreateCityRequest struct {
	Slug       string `json:"slug" binding:"required"`
	Name       string `json:"name" binding:"required"`
	RegionCode string `json:"region_code" binding:"required"`
	Timezone   string `json:"timezone"`
	Active     *bool  `json:"active"`
}

// AddDomainRequest is the body for POST /admin/cities/:id/domains.
type AddDomainRequest struct {
	Domain      string  `json:"domain" binding:"required"`
	IsPrimary   bool    `json:"is_primary"`
	IsCanonical bool    `json:"is_canonical"`
	RedirectTo  *string `json:"redirect_to"`
}

// SetModuleRequest is the body for PUT /admin/modules/:key.
type SetModuleRequest struct {
	Enabled  bool                   `json:"enabled"`
	Version  string                 `json:"version"`
	Settings map[string]interface{} `json:"settings"`
}

// SelectCityRequest is the body for POST /admin/tenant/select.
type SelectCityRequest struct {
	City string `json:"city" binding:"required"`
}

func mustTenant(c *gin.Context) (*tenancy.ResolvedTenant, bool) {
	t, ok := tenancy.FromGin(c)
	if !ok {
		response.NotFound(c, "unknown city")
		return nil, false
	}
	return t, true
}

// Tenant handles GET /api/v1/tenant and GET /admin/tenant.
func (h *Handler) Tenant(c *gin.Context) {
	t, ok := mustTenant(c)
	if !ok {
		return
	}
	response.OK(c, t)
}

// Bootstrap handles GET /api/v1/bootstrap and GET /c/:region/:city/bootstrap.
func (h *Handler) Bootstrap(c *gin.Context) {
	t, ok := mustTenant(c)
	if !ok {
		return
	}
	if region := c.Param("region"); region != "" && !strings.EqualFold(region, t.City.RegionCode) {
		response.NotFound(c, "unknown city")
		return
	}
	modules, err := h.store.EnabledModuleKeys(c.Request.Context(), t.CityID())
	if err != nil {
		h.logger.Error("load enabled modules", zap.String("city", t.City.Slug), zap.Error(err))
		response.Internal(c, "failed to load modules")
		return
	}
	response.OK(c, BootstrapResponse{
		City:      t.City,
		TenantKey: t.Key,
		Timezone:  t.Timezone,
		Source:    t.Source,
		Modules:   modules,
	})
}

// SelectCity handles POST /admin/tenant/select. It stores the selection cookie; the
// guard decides on the next request whether the selection is honored.
// Scoped staff may only select their home city and get the same 403 for every
// other slug, so the endpoint never tells them which cities exist.
func (h *Handler) SelectCity(c *gin.Context) {
	var req SelectCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "city required")
		return
	}
	slug := tenancy.NormalizeSlug(req.City)

	var (
		city *models.City
		err  error
	)
	if id, ok := tenancy.IdentityFromGin(c); ok {
		if scoped, isScoped := id.(tenancy.ScopedStaff); isScoped {
			city, err = h.homeCity(c.Request.Context(), scoped)
			if err != nil || city.Slug != slug {
				tenancy.AbortWithError(c, tenancy.ErrGuardDenied)
				return
			}
		}
	}
	if city == nil {
		city, err = h.lookup.CityBySlug(c.Request.Context(), slug)
		if err != nil {
			response.ServiceUnavailable(c, "directory unavailable")
			return
		}
		if city == nil || !city.Active {
			response.NotFound(c, "unknown city")
			return
		}
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.SelectionCookie, city.Slug, selectionMaxAge, "/", "", c.Request.TLS != nil, true)
	response.OK(c, gin.H{"selection": city.Slug})
}

// homeCity returns the active home city of a scoped staff member.
func (h *Handler) homeCity(ctx context.Context, id tenancy.ScopedStaff) (*models.City, error) {
	if id.HomeCityID == nil {
		return nil, tenancy.ErrGuardDenied
	}
	city, err := h.lookup.CityByID(ctx, *id.HomeCityID)
	if err != nil {
		return nil, err
	}
	if city == nil || !city.Active {
		return nil, tenancy.ErrGuardDenied
	}
	return city, nil
}

// ListModules handles GET /admin/modules for the guarded city.
func (h *Handler) ListModules(c *gin.Context) {
	cityID := c.MustGet(tenancy.ContextCityID).(uuid.UUID)
	list, err := h.store.ListCityModules(c.Request.Context(), cityID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// SetModule handles PUT /admin/modules/:key for the guarded city.
func (h *Handler) SetModule(c *gin.Context) {
	var req SetModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cm := &models.CityModule{
		CityID:    c.MustGet(tenancy.ContextCityID).(uuid.UUID),
		ModuleKey: c.Param("key"),
		Enabled:   req.Enabled,
		Version:   req.Version,
		Settings:  req.Settings,
	}
	if err := h.store.UpsertCityModule(c.Request.Context(), cm); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, cm)
}

// ListCities handles GET /admin/cities.
func (h *Handler) ListCities(c *gin.Context) {
	list, err := h.store.ListCities(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// CreateCity handles POST /admin/cities.
func (h *Handler) CreateCity(c *gin.Context) {
	var req CreateCityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "slug, name and region_code required")
		return
	}
	city := &models.City{
		Slug:       req.Slug,
		Name:       req.Name,
		RegionCode: req.RegionCode,
		Timezone:   req.Timezone,
		Active:     req.Active == nil || *req.Active,
	}
	if err := h.store.CreateCity(c.Request.Context(), city); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, city)
}

// UpdateCity handles PATCH /admin/cities/:id.
func (h *Handler) UpdateCity(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req CityUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	city, err := h.store.UpdateCity(c.Request.Context(), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, city)
}

// ListDomains handles GET /admin/cities/:id/domains.
func (h *Handler) ListDomains(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	list, err := h.store.ListDomains(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, list)
}

// AddDomain handles POST /admin/cities/:id/domains.
func (h *Handler) AddDomain(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req AddDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "domain required")
		return
	}
	d := &models.CityDomain{
		CityID:      id,
		Domain:      req.Domain,
		IsPrimary:   req.IsPrimary,
		IsCanonical: req.IsCanonical,
		RedirectTo:  req.RedirectTo,
	}
	if err := h.store.AddDomain(c.Request.Context(), d); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, d)
}

// RemoveDomain handles DELETE /admin/domains/:id.
func (h *Handler) RemoveDomain(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.store.RemoveDomain(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownModule):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("directory request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "directory operation failed")
	}
}
