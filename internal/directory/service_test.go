package directory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadeplus/backend/internal/models"
)

func TestValidateCity(t *testing.T) {
	c := &models.City{Slug: " Tijucas-SC ", Name: " Tijucas ", RegionCode: "SC"}
	require.NoError(t, validateCity(c))
	assert.Equal(t, "tijucas-sc", c.Slug)
	assert.Equal(t, "Tijucas", c.Name)
	assert.Equal(t, "sc", c.RegionCode)
	assert.Equal(t, "America/Sao_Paulo", c.Timezone)

	tests := []struct {
		name string
		city models.City
	}{
		{"bad slug", models.City{Slug: "tijucas sc", Name: "T", RegionCode: "sc"}},
		{"short slug", models.City{Slug: "t", Name: "T", RegionCode: "sc"}},
		{"empty name", models.City{Slug: "tijucas-sc", Name: " ", RegionCode: "sc"}},
		{"bad region", models.City{Slug: "tijucas-sc", Name: "T", RegionCode: "s1"}},
		{"bad timezone", models.City{Slug: "tijucas-sc", Name: "T", RegionCode: "sc", Timezone: "Mars/Base"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			city := tt.city
			assert.ErrorIs(t, validateCity(&city), ErrInvalid)
		})
	}
}

func TestValidateDomain(t *testing.T) {
	redirect := "HTTPS://www.Tijucas.SC.gov.br/"
	d := &models.CityDomain{CityID: uuid.New(), Domain: "https://Tijucas.Cidade.App:443/", RedirectTo: &redirect}
	require.NoError(t, validateDomain(d))
	assert.Equal(t, "tijucas.cidade.app", d.Domain)
	assert.Equal(t, "www.tijucas.sc.gov.br", *d.RedirectTo)

	empty := " "
	d = &models.CityDomain{CityID: uuid.New(), Domain: "canelinha.cidade.app", RedirectTo: &empty}
	require.NoError(t, validateDomain(d))
	assert.Nil(t, d.RedirectTo)

	assert.ErrorIs(t, validateDomain(&models.CityDomain{CityID: uuid.New(), Domain: "bad domain"}), ErrInvalid)
	assert.ErrorIs(t, validateDomain(&models.CityDomain{CityID: uuid.New(), Domain: ""}), ErrInvalid)
	assert.ErrorIs(t, validateDomain(&models.CityDomain{Domain: "ok.example.org"}), ErrInvalid)
}

func TestApplyUpdate(t *testing.T) {
	c := &models.City{Slug: "tijucas-sc", Name: "Tijucas", RegionCode: "sc", Active: true}
	name := "Tijucas (SC)"
	inactive := false
	applyUpdate(c, CityUpdate{Name: &name, Active: &inactive})

	assert.Equal(t, "Tijucas (SC)", c.Name)
	assert.False(t, c.Active)
	assert.Equal(t, "tijucas-sc", c.Slug)
	assert.Equal(t, "sc", c.RegionCode)
}

func TestService_ValidationFailsBeforeStorage(t *testing.T) {
	s := NewService(NewRepository(nil), nil, nil)

	err := s.CreateCity(context.Background(), &models.City{Slug: "!", Name: "x", RegionCode: "sc"})
	assert.ErrorIs(t, err, ErrInvalid)

	err = s.AddDomain(context.Background(), &models.CityDomain{CityID: uuid.New(), Domain: "not a domain"})
	assert.ErrorIs(t, err, ErrInvalid)

	err = s.UpsertCityModule(context.Background(), &models.CityModule{CityID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalid)
}
