package tenancy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
)

// Lookup finds cities in the domain resolution cache. Absent cities are returned as
// (nil, nil); an error means the lookup itself could not be completed.
type Lookup interface {
	CityBySlug(ctx context.Context, slug string) (*models.City, error)
	CityByDomain(ctx context.Context, domain string) (*models.City, error)
	CityByID(ctx context.Context, id uuid.UUID) (*models.City, error)
}

// IncidentSink accepts incidents for best-effort recording. Implementations must not block.
type IncidentSink interface {
	Record(ctx context.Context, inc *models.TenantIncident)
}

// ResolverComponent is the source recorded on incidents raised by the resolver.
const ResolverComponent = "tenant_resolver"

// Resolver turns request signals into exactly one ResolvedTenant.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	lookup     Lookup
	precedence []SignalKind
	incidents  IncidentSink
	metrics    *Metrics
	timeout    time.Duration
	logger     *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPrecedence sets the signal order, highest first.
func WithPrecedence(p []SignalKind) ResolverOption {
	return func(r *Resolver) {
		if len(p) > 0 {
			r.precedence = append([]SignalKind(nil), p...)
		}
	}
}

// WithIncidentSink sets where signal disagreements are reported.
func WithIncidentSink(s IncidentSink) ResolverOption {
	return func(r *Resolver) { r.incidents = s }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

// WithTimeout bounds how long one resolution may take.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver over lookup.
func NewResolver(lookup Lookup, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		lookup:     lookup,
		precedence: DefaultPrecedence,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type candidate struct {
	kind  SignalKind
	value string
	city  *models.City
}

// Resolve picks the city named by the first present signal in precedence order.
// If that signal does not name an active city the request fails; there is no
// fall-through to weaker signals and no default city. Weaker signals that name a
// different city are reported as incidents.
func (r *Resolver) Resolve(ctx context.Context, sig Signals) (*ResolvedTenant, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var winner *candidate
	var others []candidate
	for _, kind := range r.precedence {
		value := sig.value(kind)
		if value == "" {
			continue
		}
		city, err := r.find(ctx, kind, value)
		if winner == nil {
			if err != nil {
				return nil, r.fail(fmt.Errorf("%w: %s lookup: %v", ErrTenantNotFound, kind, err))
			}
			if city == nil {
				return nil, r.fail(fmt.Errorf("%w: %s %q", ErrTenantNotFound, kind, value))
			}
			if !city.Active {
				return nil, r.fail(fmt.Errorf("%w: %s %q", ErrTenantInactive, kind, value))
			}
			winner = &candidate{kind: kind, value: value, city: city}
			continue
		}
		if err != nil {
			r.logger.Debug("secondary tenant signal lookup failed", zap.String("signal", string(kind)), zap.Error(err))
			continue
		}
		if city != nil && city.ID != winner.city.ID {
			others = append(others, candidate{kind: kind, value: value, city: city})
		}
	}
	if winner == nil {
		return nil, r.fail(fmt.Errorf("%w: no tenant signal", ErrTenantNotFound))
	}

	for _, other := range others {
		r.reportMismatch(ctx, sig, *winner, other)
	}

	t := NewResolvedTenant(winner.city, winner.kind.source())
	r.metrics.resolved(t.Source)
	return t, nil
}

func (r *Resolver) find(ctx context.Context, kind SignalKind, value string) (*models.City, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if kind == SignalDomain {
		return r.lookup.CityByDomain(ctx, value)
	}
	return r.lookup.CityBySlug(ctx, value)
}

func (r *Resolver) fail(err error) error {
	r.metrics.failed(err)
	r.logger.Debug("tenant resolution failed", zap.Error(err))
	return err
}

func (r *Resolver) reportMismatch(ctx context.Context, sig Signals, winner, other candidate) {
	typ := mismatchType(winner.kind, other.kind)
	r.metrics.incident(typ)
	r.logger.Warn("tenant signals disagree",
		zap.String("type", typ),
		zap.String("winner", winner.city.Slug),
		zap.String("other", other.city.Slug),
		zap.String("request_id", sig.RequestID),
	)
	if r.incidents == nil {
		return
	}
	cityID := winner.city.ID
	r.incidents.Record(ctx, &models.TenantIncident{
		CityID:    &cityID,
		Type:      typ,
		Severity:  models.SeverityWarning,
		Source:    ResolverComponent,
		RequestID: sig.RequestID,
		TraceID:   sig.TraceID,
		Context: map[string]interface{}{
			"reason":         ErrTenantAmbiguous.Error(),
			"winner_signal":  string(winner.kind),
			"winner_value":   winner.value,
			"winner_city_id": winner.city.ID.String(),
			"winner_city":    winner.city.Slug,
			"other_signal":   string(other.kind),
			"other_value":    other.value,
			"other_city_id":  other.city.ID.String(),
			"other_city":     other.city.Slug,
		},
	})
}
