// Package domaincache keeps an in-memory projection of the tenant directory used on
// every request to map hosts and slugs to cities.
package domaincache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
)

// Loader reads the whole directory in one pass.
type Loader interface {
	LoadSnapshot(ctx context.Context) ([]models.City, []models.CityDomain, error)
}

const defaultLoadTimeout = 10 * time.Second

type snapshot struct {
	byDomain map[string]*models.City
	bySlug   map[string]*models.City
	byID     map[uuid.UUID]*models.City
	builtAt  time.Time
}

func buildSnapshot(cities []models.City, domains []models.CityDomain, now time.Time) *snapshot {
	s := &snapshot{
		byDomain: make(map[string]*models.City, len(domains)),
		bySlug:   make(map[string]*models.City, len(cities)),
		byID:     make(map[uuid.UUID]*models.City, len(cities)),
		builtAt:  now,
	}
	for i := range cities {
		city := cities[i]
		s.byID[city.ID] = &city
		s.bySlug[tenancy.NormalizeSlug(city.Slug)] = &city
	}
	for _, d := range domains {
		if city, ok := s.byID[d.CityID]; ok {
			s.byDomain[tenancy.NormalizeDomain(d.Domain)] = city
		}
	}
	return s
}

// Cache is a read-through projection of the directory. Readers never lock; a rebuild
// builds a complete new snapshot and swaps the pointer, so a half-built map is never
// visible. Cities returned by the cache are shared and must not be modified.
type Cache struct {
	loader  Loader
	current atomic.Pointer[snapshot]

	// swapMu serializes invalidation against installing a rebuilt snapshot.
	swapMu sync.Mutex
	gen    atomic.Uint64
	group  singleflight.Group

	minRebuild  time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	metrics     *tenancy.Metrics
	logger      *zap.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithMinRebuildInterval sets how long a fresh snapshot answers misses without
// reloading. Invalidation always forces the next lookup to reload.
func WithMinRebuildInterval(d time.Duration) Option {
	return func(c *Cache) { c.minRebuild = d }
}

// WithLoadTimeout bounds a single directory load.
func WithLoadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// WithMetrics records rebuild outcomes.
func WithMetrics(m *tenancy.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache over loader. The first lookup loads the directory.
func New(loader Loader, opts ...Option) *Cache {
	c := &Cache{
		loader:      loader,
		loadTimeout: defaultLoadTimeout,
		now:         time.Now,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CityByDomain implements tenancy.Lookup.
func (c *Cache) CityByDomain(ctx context.Context, domain string) (*models.City, error) {
	key := tenancy.NormalizeDomain(domain)
	return c.get(ctx, func(s *snapshot) *models.City { return s.byDomain[key] })
}

// CityBySlug implements tenancy.Lookup.
func (c *Cache) CityBySlug(ctx context.Context, slug string) (*models.City, error) {
	key := tenancy.NormalizeSlug(slug)
	return c.get(ctx, func(s *snapshot) *models.City { return s.bySlug[key] })
}

// CityByID implements tenancy.Lookup.
func (c *Cache) CityByID(ctx context.Context, id uuid.UUID) (*models.City, error) {
	return c.get(ctx, func(s *snapshot) *models.City { return s.byID[id] })
}

func (c *Cache) get(ctx context.Context, pick func(*snapshot) *models.City) (*models.City, error) {
	if s := c.current.Load(); s != nil {
		if city := pick(s); city != nil {
			return city, nil
		}
		if c.now().Sub(s.builtAt) < c.minRebuild {
			return nil, nil
		}
	}
	s, err := c.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	return pick(s), nil
}

// Invalidate drops the current snapshot. The next lookup reloads the directory, and a
// rebuild that started before the call is discarded instead of installed.
func (c *Cache) Invalidate(_ context.Context) {
	c.swapMu.Lock()
	c.gen.Add(1)
	c.current.Store(nil)
	c.swapMu.Unlock()
	c.logger.Debug("domain cache invalidated")
}

// Warm loads the directory eagerly.
func (c *Cache) Warm(ctx context.Context) error {
	_, err := c.rebuild(ctx)
	return err
}

// Stats describes the installed snapshot.
type Stats struct {
	Loaded  bool      `json:"loaded"`
	Cities  int       `json:"cities"`
	Domains int       `json:"domains"`
	BuiltAt time.Time `json:"built_at,omitempty"`
}

// Stats returns a description of the installed snapshot.
func (c *Cache) Stats() Stats {
	s := c.current.Load()
	if s == nil {
		return Stats{}
	}
	return Stats{Loaded: true, Cities: len(s.byID), Domains: len(s.byDomain), BuiltAt: s.builtAt}
}

// rebuild loads the directory once per generation no matter how many callers miss
// concurrently. Callers stop waiting when their own ctx ends.
func (c *Cache) rebuild(ctx context.Context) (*snapshot, error) {
	gen := c.gen.Load()
	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		if s := c.current.Load(); s != nil && c.now().Sub(s.builtAt) < c.minRebuild {
			return s, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		cities, domains, err := c.loader.LoadSnapshot(loadCtx)
		c.metrics.CacheRebuilt(err)
		if err != nil {
			c.logger.Error("domain cache rebuild failed", zap.Error(err))
			return nil, fmt.Errorf("load directory: %w", err)
		}
		s := buildSnapshot(cities, domains, c.now())

		c.swapMu.Lock()
		if c.gen.Load() == gen {
			c.current.Store(s)
		}
		c.swapMu.Unlock()

		c.logger.Info("domain cache rebuilt", zap.Int("cities", len(s.byID)), zap.Int("domains", len(s.byDomain)))
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*snapshot), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
