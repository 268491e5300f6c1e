// Package directory owns the tenant directory: cities, their domains and module activations.
package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/cidadeplus/backend/internal/models"
	"github.com/cidadeplus/backend/internal/tenancy"
	"github.com/cidadeplus/backend/pkg/database"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("already exists")
	ErrUnknownModule = errors.New("unknown module")
	ErrInvalid       = errors.New("invalid input")
)

var (
	// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
	slugRegex   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)
	regionRegex = regexp.MustCompile(`^[a-z]{2,8}$`)
	domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]{0,251}[a-z0-9])?$`)
)

// Invalidator is told after every committed directory change.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Service applies directory mutations. Reads are served by the embedded Repository.
type Service struct {
	*Repository
	invalidator Invalidator
	logger      *zap.Logger
}

// NewService creates a directory service. invalidator may be nil.
func NewService(repo *Repository, invalidator Invalidator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{Repository: repo, invalidator: invalidator, logger: logger}
}

// CityUpdate holds the mutable fields of a city. Nil fields are left unchanged.
type CityUpdate struct {
	Name       *string `json:"name"`
	RegionCode *string `json:"region_code"`
	Timezone   *string `json:"timezone"`
	Active     *bool   `json:"active"`
}

func validateCity(c *models.City) error {
	c.Slug = tenancy.NormalizeSlug(c.Slug)
	c.Name = strings.TrimSpace(c.Name)
	c.RegionCode = strings.ToLower(strings.TrimSpace(c.RegionCode))
	c.Timezone = strings.TrimSpace(c.Timezone)

	if !slugRegex.MatchString(c.Slug) {
		return fmt.Errorf("%w: slug must be 2–64 chars, lowercase letters, numbers, hyphens only", ErrInvalid)
	}
	if len(c.Name) < 1 || len(c.Name) > 255 {
		return fmt.Errorf("%w: name must be 1–255 characters", ErrInvalid)
	}
	if !regionRegex.MatchString(c.RegionCode) {
		return fmt.Errorf("%w: region code must be 2–8 lowercase letters", ErrInvalid)
	}
	if c.Timezone == "" {
		c.Timezone = "America/Sao_Paulo"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalid, c.Timezone)
	}
	return nil
}

func applyUpdate(c *models.City, u CityUpdate) {
	if u.Name != nil {
		c.Name = *u.Name
	}
	if u.RegionCode != nil {
		c.RegionCode = *u.RegionCode
	}
	if u.Timezone != nil {
		c.Timezone = *u.Timezone
	}
	if u.Active != nil {
		c.Active = *u.Active
	}
}

func validateDomain(d *models.CityDomain) error {
	d.Domain = tenancy.NormalizeDomain(d.Domain)
	if !domainRegex.MatchString(d.Domain) {
		return fmt.Errorf("%w: domain %q", ErrInvalid, d.Domain)
	}
	if d.CityID == uuid.Nil {
		return fmt.Errorf("%w: city id required", ErrInvalid)
	}
	if d.RedirectTo != nil {
		target := tenancy.NormalizeDomain(*d.RedirectTo)
		if target == "" {
			d.RedirectTo = nil
		} else {
			d.RedirectTo = &target
		}
	}
	return nil
}

// CreateCity inserts a city.
func (s *Service) CreateCity(ctx context.Context, c *models.City) error {
	if err := validateCity(c); err != nil {
		return err
	}
	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return createCity(ctx, tx, c)
	})
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: city %q", ErrConflict, c.Slug)
	}
	if err != nil {
		return fmt.Errorf("create city: %w", err)
	}
	s.changed(ctx, "city_created", zap.String("city", c.Slug))
	return nil
}

// UpdateCity changes the mutable fields of a city and returns the result.
func (s *Service) UpdateCity(ctx context.Context, id uuid.UUID, u CityUpdate) (*models.City, error) {
	var updated *models.City
	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		c, err := scanCity(tx.QueryRow(ctx, `SELECT `+cityColumns+` FROM cities WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		applyUpdate(c, u)
		if err := validateCity(c); err != nil {
			return err
		}
		if err := updateCity(ctx, tx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("update city: %w", err)
	}
	s.changed(ctx, "city_updated", zap.String("city", updated.Slug), zap.Bool("active", updated.Active))
	return updated, nil
}

// AddDomain binds a domain to a city. A new primary domain demotes the previous one.
func (s *Service) AddDomain(ctx context.Context, d *models.CityDomain) error {
	if err := validateDomain(d); err != nil {
		return err
	}
	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return addDomain(ctx, tx, d)
	})
	switch {
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: domain %q", ErrConflict, d.Domain)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: city %s", ErrNotFound, d.CityID)
	case err != nil:
		return fmt.Errorf("add domain: %w", err)
	}
	s.changed(ctx, "domain_added", zap.String("domain", d.Domain), zap.String("city_id", d.CityID.String()))
	return nil
}

// RemoveDomain deletes a domain binding.
func (s *Service) RemoveDomain(ctx context.Context, id uuid.UUID) error {
	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return removeDomain(ctx, tx, id)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("remove domain: %w", err)
	}
	s.changed(ctx, "domain_removed", zap.String("domain_id", id.String()))
	return nil
}

// UpsertCityModule enables, disables or reconfigures a module for a city.
func (s *Service) UpsertCityModule(ctx context.Context, cm *models.CityModule) error {
	cm.ModuleKey = strings.ToLower(strings.TrimSpace(cm.ModuleKey))
	if cm.ModuleKey == "" || cm.CityID == uuid.Nil {
		return fmt.Errorf("%w: city and module key required", ErrInvalid)
	}
	err := database.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertCityModule(ctx, tx, cm)
	})
	switch {
	case errors.Is(err, ErrUnknownModule):
		return fmt.Errorf("%w: %q", ErrUnknownModule, cm.ModuleKey)
	case database.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: city %s", ErrNotFound, cm.CityID)
	case err != nil:
		return fmt.Errorf("upsert city module: %w", err)
	}
	s.changed(ctx, "module_updated", zap.String("module", cm.ModuleKey), zap.Bool("enabled", cm.Enabled))
	return nil
}

func (s *Service) changed(ctx context.Context, what string, fields ...zap.Field) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	s.logger.Info("directory changed", append([]zap.Field{zap.String("change", what)}, fields...)...)
}
