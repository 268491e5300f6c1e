package incidents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
)

// Source lists incidents in a time range.
type Source interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]*models.TenantIncident, error)
}

// CityNamer resolves city ids to slugs for report readability. Optional.
type CityNamer interface {
	CityByID(ctx context.Context, id uuid.UUID) (*models.City, error)
}

// Sink receives finished summaries.
type Sink interface {
	Deliver(ctx context.Context, s *Summary) error
}

// Group is the count of one incident type in one city.
type Group struct {
	CityID   *uuid.UUID `json:"city_id"`
	CitySlug string     `json:"city_slug,omitempty"`
	Type     string     `json:"type"`
	Count    int        `json:"count"`
	LastSeen time.Time  `json:"last_seen"`
}

// Summary aggregates the incidents of a window.
type Summary struct {
	From   time.Time `json:"from"`
	To     time.Time `json:"to"`
	Total  int       `json:"total"`
	Groups []Group   `json:"groups"`
}

// ForCity returns a copy of s restricted to one city.
func (s *Summary) ForCity(cityID uuid.UUID) *Summary {
	out := &Summary{From: s.From, To: s.To, Groups: []Group{}}
	for _, g := range s.Groups {
		if g.CityID != nil && *g.CityID == cityID {
			out.Groups = append(out.Groups, g)
			out.Total += g.Count
		}
	}
	return out
}

// Reporter aggregates recent incidents by (city, type).
type Reporter struct {
	source Source
	cities CityNamer
	sinks  []Sink
	now    func() time.Time
	logger *zap.Logger
}

// NewReporter creates a reporter. cities may be nil.
func NewReporter(source Source, cities CityNamer, logger *zap.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{source: source, cities: cities, sinks: sinks, now: time.Now, logger: logger}
}

type groupKey struct {
	city uuid.UUID
	typ  string
}

// Summarize counts the incidents of the last window, largest groups first.
func (r *Reporter) Summarize(ctx context.Context, window time.Duration) (*Summary, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	to := r.now().UTC()
	from := to.Add(-window)
	list, err := r.source.ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	index := make(map[groupKey]int)
	s := &Summary{From: from, To: to, Total: len(list), Groups: []Group{}}
	for _, inc := range list {
		k := groupKey{typ: inc.Type}
		if inc.CityID != nil {
			k.city = *inc.CityID
		}
		i, ok := index[k]
		if !ok {
			g := Group{Type: inc.Type}
			if inc.CityID != nil {
				id := *inc.CityID
				g.CityID = &id
			}
			s.Groups = append(s.Groups, g)
			i = len(s.Groups) - 1
			index[k] = i
		}
		s.Groups[i].Count++
		if inc.CreatedAt.After(s.Groups[i].LastSeen) {
			s.Groups[i].LastSeen = inc.CreatedAt
		}
	}

	sort.SliceStable(s.Groups, func(a, b int) bool {
		ga, gb := s.Groups[a], s.Groups[b]
		if ga.Count != gb.Count {
			return ga.Count > gb.Count
		}
		if ga.Type != gb.Type {
			return ga.Type < gb.Type
		}
		return cityString(ga.CityID) < cityString(gb.CityID)
	})
	r.name(ctx, s)
	return s, nil
}

func cityString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func (r *Reporter) name(ctx context.Context, s *Summary) {
	if r.cities == nil {
		return
	}
	for i := range s.Groups {
		if s.Groups[i].CityID == nil {
			continue
		}
		if city, err := r.cities.CityByID(ctx, *s.Groups[i].CityID); err == nil && city != nil {
			s.Groups[i].CitySlug = city.Slug
		}
	}
}

// Report summarizes the window and hands the result to every sink. Sink failures are
// logged and returned joined; every sink is still attempted.
func (r *Reporter) Report(ctx context.Context, window time.Duration) (*Summary, error) {
	s, err := r.Summarize(ctx, window)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Deliver(ctx, s); err != nil {
			r.logger.Warn("incident summary sink failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return s, errors.Join(errs...)
}

// Run reports every interval until ctx is done.
func (r *Reporter) Run(ctx context.Context, interval, window time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	r.logger.Info("incident reporter started", zap.Duration("interval", interval), zap.Duration("window", window))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("incident reporter stopped")
			return
		case <-ticker.C:
			if _, err := r.Report(ctx, window); err != nil {
				r.logger.Warn("incident report failed", zap.Error(err))
			}
		}
	}
}
