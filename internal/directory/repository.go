package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadeplus/backend/internal/models"
)

// Repository handles cities, city_domains and city_modules persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a directory repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const cityColumns = `id, slug, name, region_code, active, timezone, created_at, updated_at`

const domainColumns = `id, city_id, domain, is_primary, is_canonical, redirect_to, created_at, updated_at`

func scanCity(row pgx.Row) (*models.City, error) {
	var c models.City
	err := row.Scan(&c.ID, &c.Slug, &c.Name, &c.RegionCode, &c.Active, &c.Timezone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanDomain(row pgx.Row) (*models.CityDomain, error) {
	var d models.CityDomain
	err := row.Scan(&d.ID, &d.CityID, &d.Domain, &d.IsPrimary, &d.IsCanonical, &d.RedirectTo, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadSnapshot reads every city and every domain from one consistent snapshot.
func (r *Repository) LoadSnapshot(ctx context.Context) ([]models.City, []models.CityDomain, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `SELECT `+cityColumns+` FROM cities`)
	if err != nil {
		return nil, nil, fmt.Errorf("query cities: %w", err)
	}
	var cities []models.City
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		cities = append(cities, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = tx.Query(ctx, `SELECT `+domainColumns+` FROM city_domains`)
	if err != nil {
		return nil, nil, fmt.Errorf("query domains: %w", err)
	}
	defer rows.Close()
	var domains []models.CityDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, nil, err
		}
		domains = append(domains, *d)
	}
	return cities, domains, rows.Err()
}

// GetCityByID returns a city, or nil if it does not exist.
func (r *Repository) GetCityByID(ctx context.Context, id uuid.UUID) (*models.City, error) {
	c, err := scanCity(r.pool.QueryRow(ctx, `SELECT `+cityColumns+` FROM cities WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// GetCityBySlug returns a city, or nil if it does not exist.
func (r *Repository) GetCityBySlug(ctx context.Context, slug string) (*models.City, error) {
	c, err := scanCity(r.pool.QueryRow(ctx, `SELECT `+cityColumns+` FROM cities WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListCities returns all cities ordered by region and slug.
func (r *Repository) ListCities(ctx context.Context) ([]*models.City, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+cityColumns+` FROM cities ORDER BY region_code, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.City
	for rows.Next() {
		c, err := scanCity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// ListDomains returns the domains of a city, primary first.
func (r *Repository) ListDomains(ctx context.Context, cityID uuid.UUID) ([]*models.CityDomain, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+domainColumns+` FROM city_domains WHERE city_id = $1 ORDER BY is_primary DESC, domain`, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CityDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// EnabledModuleKeys returns the keys of modules enabled for a city.
func (r *Repository) EnabledModuleKeys(ctx context.Context, cityID uuid.UUID) ([]string, error) {
	const q = `SELECT m.key FROM city_modules cm
		INNER JOIN modules m ON m.id = cm.module_id
		WHERE cm.city_id = $1 AND cm.enabled
		ORDER BY m.key`
	rows, err := r.pool.Query(ctx, q, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ListCityModules returns every catalog module with its activation state for a city.
// Modules never configured for the city are reported disabled.
func (r *Repository) ListCityModules(ctx context.Context, cityID uuid.UUID) ([]*models.CityModule, error) {
	const q = `SELECT COALESCE(cm.id, '00000000-0000-0000-0000-000000000000'::uuid), m.id, m.key,
			COALESCE(cm.enabled, FALSE), COALESCE(cm.version, ''), COALESCE(cm.settings, '{}'::jsonb),
			COALESCE(cm.updated_at, m.created_at)
		FROM modules m
		LEFT JOIN city_modules cm ON cm.module_id = m.id AND cm.city_id = $1
		ORDER BY m.key`
	rows, err := r.pool.Query(ctx, q, cityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CityModule
	for rows.Next() {
		cm := models.CityModule{CityID: cityID}
		if err := rows.Scan(&cm.ID, &cm.ModuleID, &cm.ModuleKey, &cm.Enabled, &cm.Version, &cm.Settings, &cm.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &cm)
	}
	return list, rows.Err()
}

func createCity(ctx context.Context, tx pgx.Tx, c *models.City) error {
	const q = `INSERT INTO cities (slug, name, region_code, active, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return tx.QueryRow(ctx, q, c.Slug, c.Name, c.RegionCode, c.Active, c.Timezone).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// updateCity writes the mutable fields. Slugs never change.
func updateCity(ctx context.Context, tx pgx.Tx, c *models.City) error {
	const q = `UPDATE cities SET name = $2, region_code = $3, active = $4, timezone = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING slug, created_at, updated_at`
	err := tx.QueryRow(ctx, q, c.ID, c.Name, c.RegionCode, c.Active, c.Timezone).Scan(&c.Slug, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func addDomain(ctx context.Context, tx pgx.Tx, d *models.CityDomain) error {
	if d.IsPrimary {
		if _, err := tx.Exec(ctx,
			`UPDATE city_domains SET is_primary = FALSE, updated_at = NOW() WHERE city_id = $1 AND is_primary`, d.CityID); err != nil {
			return fmt.Errorf("clear primary: %w", err)
		}
	}
	const q = `INSERT INTO city_domains (city_id, domain, is_primary, is_canonical, redirect_to)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return tx.QueryRow(ctx, q, d.CityID, d.Domain, d.IsPrimary, d.IsCanonical, d.RedirectTo).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func removeDomain(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM city_domains WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func upsertCityModule(ctx context.Context, tx pgx.Tx, cm *models.CityModule) error {
	var moduleID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM modules WHERE key = $1`, cm.ModuleKey).Scan(&moduleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnknownModule
	}
	if err != nil {
		return err
	}
	settings := cm.Settings
	if settings == nil {
		settings = map[string]interface{}{}
	}
	const q = `INSERT INTO city_modules (city_id, module_id, enabled, version, settings)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		ON CONFLICT (city_id, module_id) DO UPDATE
		SET enabled = EXCLUDED.enabled, version = EXCLUDED.version, settings = EXCLUDED.settings, updated_at = NOW()
		RETURNING id, updated_at`
	cm.ModuleID = moduleID
	cm.Settings = settings
	return tx.QueryRow(ctx, q, cm.CityID, moduleID, cm.Enabled, cm.Version, settings).Scan(&cm.ID, &cm.UpdatedAt)
}
