package tenancy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cidadeplus/backend/internal/models"
)

func scopedAt(home *uuid.UUID) ScopedStaff {
	return ScopedStaff{UserID: uuid.New(), HomeCityID: home}
}

func TestGuard_ScopedStaffPinnedToHome(t *testing.T) {
	sink := &fakeSink{}
	g := NewGuard(newFakeLookup(), sink, nil, nil)
	home := tijucas.ID

	rt, err := g.Resolve(context.Background(), GuardRequest{
		Identity:  scopedAt(&home),
		Selection: "canelinha-sc",
		RequestID: "req-9",
	})
	require.NoError(t, err)
	assert.Equal(t, tijucas.ID, rt.CityID())
	assert.Equal(t, SourceStaffLock, rt.Source)

	incidents := sink.all()
	require.Len(t, incidents, 1)
	assert.Equal(t, models.IncidentGuardSelectionOverride, incidents[0].Type)
	assert.Equal(t, GuardComponent, incidents[0].Source)
	assert.Equal(t, tijucas.ID, *incidents[0].CityID)
	assert.Equal(t, "canelinha-sc", incidents[0].Context["selection"])
}

func TestGuard_ScopedStaffIgnoresGenericTenant(t *testing.T) {
	sink := &fakeSink{}
	g := NewGuard(newFakeLookup(), sink, nil, nil)
	home := tijucas.ID

	rt, err := g.Resolve(context.Background(), GuardRequest{
		Identity: scopedAt(&home),
		Generic:  NewResolvedTenant(&itajai, SourceHeaderOverride),
	})
	require.NoError(t, err)
	assert.Equal(t, tijucas.ID, rt.CityID())

	incidents := sink.all()
	require.Len(t, incidents, 1)
	assert.Equal(t, models.IncidentGuardGenericOverride, incidents[0].Type)
	assert.Equal(t, "itajai-sc", incidents[0].Context["generic_city"])
	assert.NotContains(t, incidents[0].Context, "selection")
}

func TestGuard_ScopedStaffSelectionAndGenericDiffer(t *testing.T) {
	sink := &fakeSink{}
	g := NewGuard(newFakeLookup(), sink, nil, nil)
	home := tijucas.ID

	_, err := g.Resolve(context.Background(), GuardRequest{
		Identity:  scopedAt(&home),
		Selection: "canelinha-sc",
		Generic:   NewResolvedTenant(&itajai, SourceHeaderOverride),
	})
	require.NoError(t, err)

	incidents := sink.all()
	require.Len(t, incidents, 1)
	assert.Equal(t, models.IncidentGuardSelectionOverride, incidents[0].Type)
	assert.Equal(t, "canelinha-sc", incidents[0].Context["selection"])
	assert.Equal(t, "itajai-sc", incidents[0].Context["generic_city"])
}

func TestGuard_ScopedStaffMatchingSelection(t *testing.T) {
	sink := &fakeSink{}
	g := NewGuard(newFakeLookup(), sink, nil, nil)
	home := tijucas.ID

	rt, err := g.Resolve(context.Background(), GuardRequest{
		Identity:  scopedAt(&home),
		Selection: "Tijucas-SC",
		Generic:   NewResolvedTenant(&tijucas, SourceDomain),
	})
	require.NoError(t, err)
	assert.Equal(t, SourceStaffLock, rt.Source)
	assert.Empty(t, sink.all())
}

func TestGuard_GlobalStaffSelection(t *testing.T) {
	sink := &fakeSink{}
	g := NewGuard(newFakeLookup(), sink, nil, nil)

	rt, err := g.Resolve(context.Background(), GuardRequest{
		Identity:  GlobalStaff{UserID: uuid.New()},
		Selection: "canelinha-sc",
		Generic:   NewResolvedTenant(&tijucas, SourceDomain),
	})
	require.NoError(t, err)
	assert.Equal(t, canelinha.ID, rt.CityID())
	assert.Equal(t, SourceSessionSelection, rt.Source)
	assert.Empty(t, sink.all())
}

func TestGuard_GlobalStaffFallsBackToGeneric(t *testing.T) {
	g := NewGuard(newFakeLookup(), nil, nil, nil)
	generic := NewResolvedTenant(&itajai, SourcePathSegment)

	rt, err := g.Resolve(context.Background(), GuardRequest{
		Identity: GlobalStaff{UserID: uuid.New()},
		Generic:  generic,
	})
	require.NoError(t, err)
	assert.Equal(t, itajai.ID, rt.CityID())
	assert.Equal(t, SourcePathSegment, rt.Source)
}

func TestGuard_Failures(t *testing.T) {
	inactiveHome := biguacu.ID
	missingHome := uuid.New()

	tests := []struct {
		name    string
		req     GuardRequest
		wantErr error
	}{
		{"citizen", GuardRequest{Identity: Citizen{UserID: uuid.New()}, Selection: "tijucas-sc"}, ErrGuardDenied},
		{"no identity", GuardRequest{}, ErrGuardDenied},
		{"scoped without home", GuardRequest{Identity: scopedAt(nil)}, ErrGuardDenied},
		{"scoped with deleted home", GuardRequest{Identity: scopedAt(&missingHome)}, ErrGuardDenied},
		{"scoped with inactive home", GuardRequest{Identity: scopedAt(&inactiveHome)}, ErrTenantInactive},
		{"global without selection", GuardRequest{Identity: GlobalStaff{UserID: uuid.New()}}, ErrTenantNotFound},
		{"global unknown selection", GuardRequest{Identity: GlobalStaff{UserID: uuid.New()}, Selection: "nowhere"}, ErrTenantNotFound},
		{"global inactive selection", GuardRequest{Identity: GlobalStaff{UserID: uuid.New()}, Selection: "biguacu-sc"}, ErrTenantInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, err := NewGuard(newFakeLookup(), nil, nil, nil).Resolve(context.Background(), tt.req)
			assert.Nil(t, rt)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
