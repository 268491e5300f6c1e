package tenancy

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/cidadeplus/backend/internal/models"
)

type fakeLookup struct {
	cities  []models.City
	domains map[string]uuid.UUID
	err     error
}

func (f *fakeLookup) CityBySlug(_ context.Context, slug string) (*models.City, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.cities {
		if f.cities[i].Slug == slug {
			c := f.cities[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeLookup) CityByDomain(ctx context.Context, domain string) (*models.City, error) {
	if f.err != nil {
		return nil, f.err
	}
	id, ok := f.domains[domain]
	if !ok {
		return nil, nil
	}
	return f.CityByID(ctx, id)
}

func (f *fakeLookup) CityByID(_ context.Context, id uuid.UUID) (*models.City, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.cities {
		if f.cities[i].ID == id {
			c := f.cities[i]
			return &c, nil
		}
	}
	return nil, nil
}

type fakeSink struct {
	mu        sync.Mutex
	incidents []*models.TenantIncident
}

func (s *fakeSink) Record(_ context.Context, inc *models.TenantIncident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, inc)
}

func (s *fakeSink) all() []*models.TenantIncident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.TenantIncident(nil), s.incidents...)
}

var errLookupDown = errors.New("directory unavailable")

// Fixture cities. localhost maps to florianopolis-sc.
var (
	florianopolis = models.City{ID: uuid.MustParse("0a4b7e35-52a2-4b39-9a3c-6f0b0f6e0001"), Slug: "florianopolis-sc", Name: "Florianópolis", RegionCode: "sc", Active: true, Timezone: "America/Sao_Paulo"}
	tijucas       = models.City{ID: uuid.MustParse("0a4b7e35-52a2-4b39-9a3c-6f0b0f6e0002"), Slug: "tijucas-sc", Name: "Tijucas", RegionCode: "sc", Active: true, Timezone: "America/Sao_Paulo"}
	canelinha     = models.City{ID: uuid.MustParse("0a4b7e35-52a2-4b39-9a3c-6f0b0f6e0003"), Slug: "canelinha-sc", Name: "Canelinha", RegionCode: "sc", Active: true, Timezone: "America/Sao_Paulo"}
	itajai        = models.City{ID: uuid.MustParse("0a4b7e35-52a2-4b39-9a3c-6f0b0f6e0004"), Slug: "itajai-sc", Name: "Itajaí", RegionCode: "sc", Active: true, Timezone: "America/Sao_Paulo"}
	biguacu       = models.City{ID: uuid.MustParse("0a4b7e35-52a2-4b39-9a3c-6f0b0f6e0005"), Slug: "biguacu-sc", Name: "Biguaçu", RegionCode: "sc", Active: false, Timezone: "America/Sao_Paulo"}
)

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		cities: []models.City{florianopolis, tijucas, canelinha, itajai, biguacu},
		domains: map[string]uuid.UUID{
			"localhost":          florianopolis.ID,
			"tijucas.cidade.app": tijucas.ID,
			"biguacu.cidade.app": biguacu.ID,
		},
	}
}
