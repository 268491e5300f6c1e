package tenancy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
)

// GuardComponent is the source recorded on incidents raised by the guard.
const GuardComponent = "tenant_guard"

// GuardRequest carries the inputs of the admin-surface resolution pass.
type GuardRequest struct {
	Identity  Identity
	Selection string          // session or query selected city slug, may be empty
	Generic   *ResolvedTenant // outcome of the generic resolver, may be nil

	RequestID string
	TraceID   string
}

// Guard is the staff lock: it pins scoped staff to their home city whatever the request claims.
type Guard struct {
	lookup    Lookup
	incidents IncidentSink
	metrics   *Metrics
	logger    *zap.Logger
}

// NewGuard creates a guard. incidents and metrics may be nil.
func NewGuard(lookup Lookup, incidents IncidentSink, metrics *Metrics, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{lookup: lookup, incidents: incidents, metrics: metrics, logger: logger}
}

// Resolve decides the city an admin request acts on.
func (g *Guard) Resolve(ctx context.Context, req GuardRequest) (*ResolvedTenant, error) {
	var (
		t   *ResolvedTenant
		err error
	)
	switch id := req.Identity.(type) {
	case GlobalStaff:
		t, err = g.resolveGlobal(ctx, req)
	case ScopedStaff:
		t, err = g.resolveScoped(ctx, id, req)
	case Citizen:
		err = fmt.Errorf("%w: citizen on admin surface", ErrGuardDenied)
	default:
		err = fmt.Errorf("%w: no identity", ErrGuardDenied)
	}
	if err != nil {
		g.metrics.failed(err)
		return nil, err
	}
	g.metrics.resolved(t.Source)
	return t, nil
}

func (g *Guard) resolveGlobal(ctx context.Context, req GuardRequest) (*ResolvedTenant, error) {
	slug := NormalizeSlug(req.Selection)
	if slug == "" {
		if req.Generic != nil {
			return req.Generic, nil
		}
		return nil, fmt.Errorf("%w: no selection", ErrTenantNotFound)
	}
	city, err := g.lookup.CityBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("%w: selection lookup: %v", ErrTenantNotFound, err)
	}
	if city == nil {
		return nil, fmt.Errorf("%w: selection %q", ErrTenantNotFound, slug)
	}
	if !city.Active {
		return nil, fmt.Errorf("%w: selection %q", ErrTenantInactive, slug)
	}
	return NewResolvedTenant(city, SourceSessionSelection), nil
}

func (g *Guard) resolveScoped(ctx context.Context, id ScopedStaff, req GuardRequest) (*ResolvedTenant, error) {
	if id.HomeCityID == nil {
		return nil, fmt.Errorf("%w: scoped identity without home city", ErrGuardDenied)
	}
	home, err := g.lookup.CityByID(ctx, *id.HomeCityID)
	if err != nil {
		return nil, fmt.Errorf("%w: home city lookup: %v", ErrTenantNotFound, err)
	}
	if home == nil {
		return nil, fmt.Errorf("%w: home city %s missing", ErrGuardDenied, id.HomeCityID)
	}
	if !home.Active {
		return nil, fmt.Errorf("%w: home city %q", ErrTenantInactive, home.Slug)
	}

	selected := NormalizeSlug(req.Selection)
	selectionDiffers := selected != "" && selected != home.Slug
	genericDiffers := req.Generic != nil && req.Generic.City.ID != home.ID
	switch {
	case selectionDiffers:
		g.reportOverride(ctx, models.IncidentGuardSelectionOverride, id, home, selected, req)
	case genericDiffers:
		g.reportOverride(ctx, models.IncidentGuardGenericOverride, id, home, selected, req)
	}
	return NewResolvedTenant(home, SourceStaffLock), nil
}

// reportOverride records that a scoped request asked for another city. A differing
// selection wins over a differing generic tenant; one request raises one incident.
func (g *Guard) reportOverride(ctx context.Context, typ string, id ScopedStaff, home *models.City, selected string, req GuardRequest) {
	g.metrics.incident(typ)
	g.logger.Warn("scoped staff request pinned to home city",
		zap.String("user_id", id.UserID.String()),
		zap.String("home_city", home.Slug),
		zap.String("incident", typ),
		zap.String("selection", selected),
		zap.String("request_id", req.RequestID),
	)
	if g.incidents == nil {
		return
	}
	payload := map[string]interface{}{
		"user_id":      id.UserID.String(),
		"home_city_id": home.ID.String(),
		"home_city":    home.Slug,
	}
	if selected != "" {
		payload["selection"] = selected
	}
	if req.Generic != nil {
		payload["generic_city_id"] = req.Generic.City.ID.String()
		payload["generic_city"] = req.Generic.City.Slug
		payload["generic_source"] = string(req.Generic.Source)
	}
	cityID := home.ID
	g.incidents.Record(ctx, &models.TenantIncident{
		CityID:    &cityID,
		Type:      typ,
		Severity:  models.SeverityWarning,
		Source:    GuardComponent,
		RequestID: req.RequestID,
		TraceID:   req.TraceID,
		Context:   payload,
	})
}
