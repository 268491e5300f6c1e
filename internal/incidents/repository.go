package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cidadeplus/backend/internal/models"
)

var (
	ErrNotFound            = errors.New("incident not found")
	ErrAlreadyAcknowledged = errors.New("incident already acknowledged")
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Repository handles tenant_incidents persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an incidents repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const incidentColumns = `id, city_id, type, severity, source, COALESCE(module_key, ''), COALESCE(request_id, ''),
	COALESCE(trace_id, ''), context, created_at, acknowledged_at`

func scanIncident(row pgx.Row) (*models.TenantIncident, error) {
	var inc models.TenantIncident
	err := row.Scan(&inc.ID, &inc.CityID, &inc.Type, &inc.Severity, &inc.Source, &inc.ModuleKey,
		&inc.RequestID, &inc.TraceID, &inc.Context, &inc.CreatedAt, &inc.AcknowledgedAt)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// Create inserts an incident. Inserting the same id twice is a no-op, so redelivered
// queue messages do not duplicate rows.
func (r *Repository) Create(ctx context.Context, inc *models.TenantIncident) error {
	const q = `INSERT INTO tenant_incidents
		(id, city_id, type, severity, source, module_key, request_id, trace_id, context, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9, $10)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, inc.ID, inc.CityID, inc.Type, inc.Severity, inc.Source,
		inc.ModuleKey, inc.RequestID, inc.TraceID, inc.Context, inc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// GetByID returns an incident, or nil if absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.TenantIncident, error) {
	inc, err := scanIncident(r.pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM tenant_incidents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inc, err
}

// ListFilter narrows List. Zero values mean no restriction.
type ListFilter struct {
	CityID         *uuid.UUID
	Type           string
	Since          time.Time
	Until          time.Time
	Unacknowledged bool
	Limit          int
}

// List returns incidents newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*models.TenantIncident, error) {
	q := `SELECT ` + incidentColumns + ` FROM tenant_incidents WHERE TRUE`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.CityID != nil {
		q += ` AND city_id = ` + arg(*f.CityID)
	}
	if f.Type != "" {
		q += ` AND type = ` + arg(f.Type)
	}
	if !f.Since.IsZero() {
		q += ` AND created_at >= ` + arg(f.Since)
	}
	if !f.Until.IsZero() {
		q += ` AND created_at < ` + arg(f.Until)
	}
	if f.Unacknowledged {
		q += ` AND acknowledged_at IS NULL`
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q += ` ORDER BY created_at DESC LIMIT ` + arg(limit)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.TenantIncident{}
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inc)
	}
	return list, rows.Err()
}

// ListBetween returns every incident created in [from, to).
func (r *Repository) ListBetween(ctx context.Context, from, to time.Time) ([]*models.TenantIncident, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+incidentColumns+` FROM tenant_incidents WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TenantIncident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inc)
	}
	return list, rows.Err()
}

// Acknowledge sets acknowledged_at once. When cityID is set the incident must belong to that city.
func (r *Repository) Acknowledge(ctx context.Context, id uuid.UUID, cityID *uuid.UUID, at time.Time) (*models.TenantIncident, error) {
	var inc *models.TenantIncident
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		inc, err = scanIncident(tx.QueryRow(ctx,
			`SELECT `+incidentColumns+` FROM tenant_incidents WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if cityID != nil && (inc.CityID == nil || *inc.CityID != *cityID) {
			return ErrNotFound
		}
		if inc.AcknowledgedAt != nil {
			return ErrAlreadyAcknowledged
		}
		at = at.UTC()
		if _, err := tx.Exec(ctx, `UPDATE tenant_incidents SET acknowledged_at = $2 WHERE id = $1`, id, at); err != nil {
			return err
		}
		inc.AcknowledgedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}
