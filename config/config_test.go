package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadeplus/backend/internal/tenancy"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TENANCY_PRECEDENCE", "")
	t.Setenv("TENANCY_INCIDENT_DELIVERY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"header", "path", "domain"}, cfg.Tenancy.Precedence)
	assert.Equal(t, "X-City", cfg.Tenancy.OverrideHeader)
	assert.Equal(t, "X-Tenant-Key", cfg.Tenancy.KeyHeader)
	assert.Equal(t, DeliveryDirect, cfg.Tenancy.IncidentDelivery)
	assert.Equal(t, time.Hour, cfg.Tenancy.SummaryWindow)
}

func TestLoad_PrecedenceOverride(t *testing.T) {
	t.Setenv("TENANCY_PRECEDENCE", "Path, header ,domain")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"path", "header", "domain"}, cfg.Tenancy.Precedence)
}

func TestLoad_DurationFormats(t *testing.T) {
	t.Setenv("TENANCY_RESOLVE_TIMEOUT", "750ms")
	t.Setenv("TENANCY_MIN_REBUILD_INTERVAL", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.Tenancy.ResolveTimeout)
	assert.Equal(t, 10*time.Second, cfg.Tenancy.MinRebuildInterval)
}

func TestTenancyConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		precedence []string
		delivery   string
		wantErr    bool
	}{
		{"default order", []string{"header", "path", "domain"}, DeliveryDirect, false},
		{"domain only", []string{"domain"}, DeliveryQueue, false},
		{"case and spaces", []string{" Path", "DOMAIN "}, DeliveryDirect, false},
		{"empty", nil, DeliveryDirect, true},
		{"unknown signal", []string{"header", "cookie"}, DeliveryDirect, true},
		{"duplicate", []string{"header", "header"}, DeliveryDirect, true},
		{"bad delivery", []string{"header"}, "kafka", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TenancyConfig{Precedence: tt.precedence, IncidentDelivery: tt.delivery}.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// Config and the resolver must agree on what a valid precedence list is.
func TestTenancyConfig_ValidateMatchesResolver(t *testing.T) {
	for _, p := range [][]string{
		nil,
		{"header", "path", "domain"},
		{"path"},
		{"header", "cookie"},
		{"domain", "Domain"},
	} {
		_, perr := tenancy.ParsePrecedence(p)
		verr := TenancyConfig{Precedence: p, IncidentDelivery: DeliveryDirect}.Validate()
		assert.Equal(t, perr == nil, verr == nil, "%v", p)
		if perr != nil {
			assert.ErrorContains(t, verr, perr.Error())
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())

	c.URL = "postgres://other"
	assert.Equal(t, "postgres://other", c.DSN())
}
