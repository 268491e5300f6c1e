package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStore struct {
	cities  map[uuid.UUID]*models.City
	domains []*models.CityDomain
	modules map[uuid.UUID][]string
	upserts []*models.CityModule
}

func newFakeStore(cities ...models.City) *fakeStore {
	s := &fakeStore{cities: map[uuid.UUID]*models.City{}, modules: map[uuid.UUID][]string{}}
	for i := range cities {
		c := cities[i]
		s.cities[c.ID] = &c
	}
	return s
}

func (s *fakeStore) ListCities(context.Context) ([]*models.City, error) {
	var out []*models.City
	for _, c := range s.cities {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeStore) GetCityByID(_ context.Context, id uuid.UUID) (*models.City, error) {
	return s.cities[id], nil
}

func (s *fakeStore) ListDomains(_ context.Context, cityID uuid.UUID) ([]*models.CityDomain, error) {
	var out []*models.CityDomain
	for _, d := range s.domains {
		if d.CityID == cityID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) EnabledModuleKeys(_ context.Context, cityID uuid.UUID) ([]string, error) {
	return s.modules[cityID], nil
}

func (s *fakeStore) ListCityModules(_ context.Context, cityID uuid.UUID) ([]*models.CityModule, error) {
	var out []*models.CityModule
	for _, k := range s.modules[cityID] {
		out = append(out, &models.CityModule{CityID: cityID, ModuleKey: k, Enabled: true})
	}
	return out, nil
}

func (s *fakeStore) CreateCity(_ context.Context, c *models.City) error {
	if err := validateCity(c); err != nil {
		return err
	}
	for _, existing := range s.cities {
		if existing.Slug == c.Slug {
			return fmt.Errorf("%w: city %q", ErrConflict, c.Slug)
		}
	}
	c.ID = uuid.New()
	s.cities[c.ID] = c
	return nil
}

func (s *fakeStore) UpdateCity(_ context.Context, id uuid.UUID, u CityUpdate) (*models.City, error) {
	c, ok := s.cities[id]
	if !ok {
		return nil, ErrNotFound
	}
	applyUpdate(c, u)
	return c, validateCity(c)
}

func (s *fakeStore) AddDomain(_ context.Context, d *models.CityDomain) error {
	if err := validateDomain(d); err != nil {
		return err
	}
	if _, ok := s.cities[d.CityID]; !ok {
		return ErrNotFound
	}
	d.ID = uuid.New()
	s.domains = append(s.domains, d)
	return nil
}

func (s *fakeStore) RemoveDomain(_ context.Context, id uuid.UUID) error {
	for i, d := range s.domains {
		if d.ID == id {
			s.domains = append(s.domains[:i], s.domains[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) UpsertCityModule(_ context.Context, cm *models.CityModule) error {
	if cm.ModuleKey != "forum" && cm.ModuleKey != "events" {
		return ErrUnknownModule
	}
	s.upserts = append(s.upserts, cm)
	return nil
}

type staticLookup struct{ cities []models.City }

func (l staticLookup) CityBySlug(_ context.Context, slug string) (*models.City, error) {
	for i := range l.cities {
		if l.cities[i].Slug == slug {
			return &l.cities[i], nil
		}
	}
	return nil, nil
}

func (l staticLookup) CityByDomain(context.Context, string) (*models.City, error) { return nil, nil }

func (l staticLookup) CityByID(_ context.Context, id uuid.UUID) (*models.City, error) {
	for i := range l.cities {
		if l.cities[i].ID == id {
			return &l.cities[i], nil
		}
	}
	return nil, nil
}

var (
	tijucas  = models.City{ID: uuid.New(), Slug: "tijucas-sc", Name: "Tijucas", RegionCode: "sc", Active: true, Timezone: "America/Sao_Paulo"}
	biguacu  = models.City{ID: uuid.New(), Slug: "biguacu-sc", Name: "Biguaçu", RegionCode: "sc", Active: false, Timezone: "America/Sao_Paulo"}
	cityList = []models.City{tijucas, biguacu}
)

func withTenant(city models.City) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := tenancy.NewResolvedTenant(&city, tenancy.SourcePathSegment)
		c.Set(tenancy.ContextTenant, t)
		c.Set(tenancy.ContextCityID, t.CityID())
		c.Next()
	}
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Bootstrap(t *testing.T) {
	store := newFakeStore(cityList...)
	store.modules[tijucas.ID] = []string{"events", "forum"}
	h := NewHandler(store, staticLookup{cityList}, tenancy.DefaultHTTPConfig(), nil)

	r := gin.New()
	r.GET("/c/:region/:city/bootstrap", withTenant(tijucas), h.Bootstrap)

	w := do(r, http.MethodGet, "/c/sc/tijucas-sc/bootstrap", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data BootstrapResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tijucas-sc", body.Data.City.Slug)
	assert.Equal(t, tenancy.DeriveKey(tijucas.ID), body.Data.TenantKey)
	assert.Equal(t, []string{"events", "forum"}, body.Data.Modules)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/c/pr/tijucas-sc/bootstrap", nil).Code)
}

func TestHandler_BootstrapWithoutTenant(t *testing.T) {
	h := NewHandler(newFakeStore(), staticLookup{}, tenancy.DefaultHTTPConfig(), nil)
	r := gin.New()
	r.GET("/api/v1/bootstrap", h.Bootstrap)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/bootstrap", nil).Code)
}

func TestHandler_SelectCity(t *testing.T) {
	h := NewHandler(newFakeStore(cityList...), staticLookup{cityList}, tenancy.DefaultHTTPConfig(), nil)
	r := gin.New()
	r.POST("/admin/tenant/select", h.SelectCity)

	w := do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "Tijucas-SC"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "admin_city", cookies[0].Name)
	assert.Equal(t, "tijucas-sc", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "biguacu-sc"}).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "nowhere"}).Code)
}

func TestHandler_CityAdministration(t *testing.T) {
	store := newFakeStore(cityList...)
	h := NewHandler(store, staticLookup{cityList}, tenancy.DefaultHTTPConfig(), nil)
	r := gin.New()
	r.POST("/admin/cities", h.CreateCity)
	r.PATCH("/admin/cities/:id", h.UpdateCity)
	r.POST("/admin/cities/:id/domains", h.AddDomain)
	r.GET("/admin/cities/:id/domains", h.ListDomains)
	r.DELETE("/admin/domains/:id", h.RemoveDomain)

	w := do(r, http.MethodPost, "/admin/cities", CreateCityRequest{Slug: "canelinha-sc", Name: "Canelinha", RegionCode: "sc"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Data models.City `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, created.Data.Active)

	assert.Equal(t, http.StatusConflict,
		do(r, http.MethodPost, "/admin/cities", CreateCityRequest{Slug: "canelinha-sc", Name: "Dup", RegionCode: "sc"}).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(r, http.MethodPost, "/admin/cities", CreateCityRequest{Slug: "Bad Slug", Name: "X", RegionCode: "sc"}).Code)

	id := created.Data.ID.String()
	inactive := false
	w = do(r, http.MethodPatch, "/admin/cities/"+id, CityUpdate{Active: &inactive})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, store.cities[created.Data.ID].Active)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPatch, "/admin/cities/"+uuid.NewString(), CityUpdate{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPatch, "/admin/cities/not-a-uuid", CityUpdate{}).Code)

	w = do(r, http.MethodPost, "/admin/cities/"+id+"/domains", AddDomainRequest{Domain: "Canelinha.Cidade.App", IsPrimary: true})
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.domains, 1)
	assert.Equal(t, "canelinha.cidade.app", store.domains[0].Domain)

	w = do(r, http.MethodGet, "/admin/cities/"+id+"/domains", nil)
	assert.Contains(t, w.Body.String(), "canelinha.cidade.app")

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/admin/domains/"+store.domains[0].ID.String(), nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/admin/domains/"+uuid.NewString(), nil).Code)
}

func TestHandler_Modules(t *testing.T) {
	store := newFakeStore(cityList...)
	store.modules[tijucas.ID] = []string{"forum"}
	h := NewHandler(store, staticLookup{cityList}, tenancy.DefaultHTTPConfig(), nil)
	r := gin.New()
	r.GET("/admin/modules", withTenant(tijucas), h.ListModules)
	r.PUT("/admin/modules/:key", withTenant(tijucas), h.SetModule)

	w := do(r, http.MethodGet, "/admin/modules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "forum")

	w = do(r, http.MethodPut, "/admin/modules/events", SetModuleRequest{Enabled: true, Settings: map[string]interface{}{"max_per_day": 3}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, store.upserts, 1)
	assert.Equal(t, tijucas.ID, store.upserts[0].CityID)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/admin/modules/lottery", SetModuleRequest{Enabled: true}).Code)
}

func withIdentity(id tenancy.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(tenancy.ContextIdentity, id)
		c.Next()
	}
}

func TestHandler_SelectCityScopedStaff(t *testing.T) {
	itajai := models.City{ID: uuid.New(), Slug: "itajai-sc", Name: "Itajaí", RegionCode: "sc", Active: true}
	cities := append([]models.City{itajai}, cityList...)
	h := NewHandler(newFakeStore(cities...), staticLookup{cities}, tenancy.DefaultHTTPConfig(), nil)

	home := tijucas.ID
	r := gin.New()
	r.POST("/admin/tenant/select", withIdentity(tenancy.ScopedStaff{UserID: uuid.New(), HomeCityID: &home}), h.SelectCity)

	w := do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "tijucas-sc"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, "tijucas-sc", w.Result().Cookies()[0].Value)

	foreign := do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "itajai-sc"})
	inactive := do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "biguacu-sc"})
	unknown := do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "does-not-exist"})
	for _, got := range []*httptest.ResponseRecorder{foreign, inactive} {
		assert.Equal(t, unknown.Code, got.Code)
		assert.Equal(t, unknown.Body.String(), got.Body.String())
		assert.Empty(t, got.Result().Cookies())
	}
	assert.Equal(t, http.StatusForbidden, unknown.Code)
	assert.Contains(t, unknown.Body.String(), "not authorized for this city")

	// a global operator still learns whether the slug exists
	g := gin.New()
	g.POST("/admin/tenant/select", withIdentity(tenancy.GlobalStaff{UserID: uuid.New()}), h.SelectCity)
	assert.Equal(t, http.StatusOK, do(g, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "itajai-sc"}).Code)
	assert.Equal(t, http.StatusNotFound, do(g, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "does-not-exist"}).Code)
}

func TestHandler_SelectCityScopedStaffWithoutHome(t *testing.T) {
	h := NewHandler(newFakeStore(cityList...), staticLookup{cityList}, tenancy.DefaultHTTPConfig(), nil)
	inactiveHome := biguacu.ID
	for _, id := range []tenancy.ScopedStaff{{UserID: uuid.New()}, {UserID: uuid.New(), HomeCityID: &inactiveHome}} {
		r := gin.New()
		r.POST("/admin/tenant/select", withIdentity(id), h.SelectCity)
		w := do(r, http.MethodPost, "/admin/tenant/select", SelectCityRequest{City: "tijucas-sc"})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, w.Result().Cookies())
	}
}
