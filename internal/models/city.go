package models

import (
	"time"

	"github.com/google/uuid"
)

// City is a tenant of the platform.
type City struct {
	ID         uuid.UUID `json:"id"`
	Slug       string    `json:"slug"`
	Name       string    `json:"name"`
	RegionCode string    `json:"region_code"`
	Active     bool      `json:"active"`
	Timezone   string    `json:"timezone"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CityDomain binds a normalized network domain to exactly one city.
type CityDomain struct {
	ID          uuid.UUID `json:"id"`
	CityID      uuid.UUID `json:"city_id"`
	Domain      string    `json:"domain"`
	IsPrimary   bool      `json:"is_primary"`
	IsCanonical bool      `json:"is_canonical"`
	RedirectTo  *string   `json:"redirect_to,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
