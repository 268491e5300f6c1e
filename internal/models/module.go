package models

import (
	"time"

	"github.com/google/uuid"
)

// Module is a catalog feature (forum, events, votes, ...).
type Module struct {
	ID          uuid.UUID `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CityModule is the activation of a module for one city. (city_id, module_id) is unique.
type CityModule struct {
	ID        uuid.UUID              `json:"id"`
	CityID    uuid.UUID              `json:"city_id"`
	ModuleID  uuid.UUID              `json:"module_id"`
	ModuleKey string                 `json:"module_key"`
	Enabled   bool                   `json:"enabled"`
	Version   string                 `json:"version,omitempty"`
	Settings  map[string]interface{} `json:"settings,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}
