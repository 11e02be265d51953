package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/coverage"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProviders(store *memSettings) *ProvidersService {
	return NewProvidersService(store, catalog.Default(), time.Minute, domain.NotificationConfig{
		AdminEmail:                "ops@example.com",
		EmailNotificationsEnabled: true,
		SlackNotificationsEnabled: true,
	})
}

func TestProviders_DefaultsWhenNothingStored(t *testing.T) {
	s := newProviders(newMemSettings())
	list := s.List(context.Background())
	require.Len(t, list, 12)
	assert.Equal(t, "xfinity", list[0].ID)
	assert.Equal(t, "directv", list[11].ID)
	for i, p := range list {
		assert.True(t, p.Enabled)
		assert.Equal(t, i+1, p.DisplayOrder)
	}
}

func TestProviders_MergeAndSanitize(t *testing.T) {
	store := newMemSettings()
	store.data[repository.KeyProviderConfig] = []byte(`[
		{"id": "spectrum", "name": "Spectrum", "enabled": false, "displayOrder": 99},
		{"id": "kinetic", "name": "Kinetic"},
		{"id": "ghost", "name": "Ghost ISP", "enabled": true},
		{"name": "no id"},
		"garbage"
	]`)
	s := newProviders(store)

	list := s.List(context.Background())
	require.Len(t, list, 12)
	assert.Equal(t, "spectrum", list[11].ID)
	assert.False(t, list[11].Enabled)

	byID := map[string]domain.Provider{}
	for _, p := range list {
		byID[p.ID] = p
	}
	// missing enabled defaults to true, missing order to its index+1
	assert.True(t, byID["kinetic"].Enabled)
	assert.Equal(t, 2, byID["kinetic"].DisplayOrder)
	assert.NotContains(t, byID, "ghost")

	assert.False(t, s.EnabledIDs(context.Background())["spectrum"])
	assert.Len(t, s.Enabled(context.Background()), 11)
}

func TestProviders_NotAnArrayFallsBack(t *testing.T) {
	store := newMemSettings()
	store.data[repository.KeyProviderConfig] = []byte(`{"xfinity": false}`)
	assert.Len(t, newProviders(store).Enabled(context.Background()), 12)
}

func TestProviders_StoreErrorFallsBack(t *testing.T) {
	store := newMemSettings()
	store.err = errors.New("connection refused")
	s := newProviders(store)
	assert.Len(t, s.List(context.Background()), 12)

	_, err := s.SetEnabled(context.Background(), "xfinity", false)
	assert.Error(t, err)
}

func TestProviders_ToggleSaveReset(t *testing.T) {
	ctx := context.Background()
	s := newProviders(newMemSettings())

	p, err := s.SetEnabled(ctx, "earthlink", false)
	require.NoError(t, err)
	assert.False(t, p.Enabled)
	assert.False(t, s.EnabledIDs(ctx)["earthlink"])

	_, err = s.SetEnabled(ctx, "nope", true)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	list, err := s.Save(ctx, []domain.Provider{
		{ID: "earthlink", Enabled: true},
		{ID: "xfinity", Enabled: false, DisplayOrder: 50},
		{ID: "unknown", Enabled: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "xfinity", list[11].ID)
	assert.True(t, s.EnabledIDs(ctx)["earthlink"])
	assert.False(t, s.EnabledIDs(ctx)["xfinity"])
	assert.Len(t, list, 12)

	list, err = s.Reset(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 12)
	assert.Len(t, s.Enabled(ctx), 12)
}

func TestProviders_ReadsAreCached(t *testing.T) {
	store := newMemSettings()
	s := newProviders(store)
	ctx := context.Background()

	s.List(ctx)
	s.List(ctx)
	s.EnabledIDs(ctx)
	assert.Equal(t, 1, store.gets)

	_, err := s.SetEnabled(ctx, "xfinity", false)
	require.NoError(t, err)
	assert.False(t, s.EnabledIDs(ctx)["xfinity"])
}

func TestNotificationAndFormConfig(t *testing.T) {
	ctx := context.Background()
	store := newMemSettings()
	s := newProviders(store)

	nc := s.NotificationConfig(ctx)
	assert.Equal(t, "ops@example.com", nc.AdminEmail)
	assert.True(t, nc.EmailNotificationsEnabled)

	store.put(repository.KeyNotificationConfig, map[string]any{"push_notifications_enabled": true})
	s = newProviders(store)
	nc = s.NotificationConfig(ctx)
	assert.True(t, nc.PushNotificationsEnabled)
	assert.Equal(t, "ops@example.com", nc.AdminEmail)

	assert.True(t, s.FormConfig(ctx).Accepting())
	require.NoError(t, s.SaveFormConfig(ctx, domain.FormConfig{FormEnabled: false}))
	assert.False(t, s.FormConfig(ctx).Accepting())

	store.data[repository.KeyFormConfig] = []byte(`not json`)
	s = newProviders(store)
	assert.True(t, s.FormConfig(ctx).Accepting())
}

func TestAvailability_GeocoderCityWins(t *testing.T) {
	cat := catalog.Default()
	m := coverage.NewMatcher(cat.Nationwide())
	m.Set([]*coverage.Dataset{coverage.NewDataset("spectrum", "Spectrum", "Dataset City", "KY", "40505")})
	providers := newProviders(newMemSettings())

	lookup := &stubLookup{res: domain.ZipLookupResult{Found: true, City: "Lexington", State: "KY", Source: "zippopotamus"}}
	a, err := NewAvailabilityService(lookup, m, providers).Check(context.Background(), "40505")
	require.NoError(t, err)
	assert.Equal(t, []string{"Spectrum", "EarthLink", "DirecTV"}, a.Providers)
	assert.Equal(t, "Lexington", a.City)
	assert.Equal(t, CityFromGeocoder, a.CityStateSource)
	assert.True(t, offers(a.Providers, "spectrum"))
	assert.False(t, offers(a.Providers, "Xfinity"))

	lookup.res = domain.ZipLookupResult{}
	a, err = NewAvailabilityService(lookup, m, providers).Check(context.Background(), "40505")
	require.NoError(t, err)
	assert.Equal(t, "Dataset City", a.City)
	assert.Equal(t, CityFromDataset, a.CityStateSource)

	a, err = NewAvailabilityService(lookup, m, providers).Check(context.Background(), "99999")
	require.NoError(t, err)
	assert.False(t, a.Found)
	assert.Equal(t, []string{"EarthLink", "DirecTV"}, a.Providers)
}

func TestAvailability_CoverageNotLoaded(t *testing.T) {
	m := coverage.NewMatcher(nil)
	svc := NewAvailabilityService(&stubLookup{}, m, newProviders(newMemSettings()))
	_, err := svc.Check(context.Background(), "40505")
	assert.ErrorIs(t, err, coverage.ErrCoverageNotLoaded)
	_, err = svc.Providers(context.Background(), "40505")
	assert.ErrorIs(t, err, coverage.ErrCoverageNotLoaded)
}

func TestAvailability_ProvidersSkipsGeocoders(t *testing.T) {
	cat := catalog.Default()
	m := coverage.NewMatcher(cat.Nationwide())
	m.Set([]*coverage.Dataset{coverage.NewDataset("spectrum", "Spectrum", "Lexington", "KY", "40505")})
	lookup := &stubLookup{}

	got, err := NewAvailabilityService(lookup, m, newProviders(newMemSettings())).Providers(context.Background(), "40505")
	require.NoError(t, err)
	assert.Equal(t, []string{"Spectrum", "EarthLink", "DirecTV"}, got)
	assert.Equal(t, 0, lookup.calls)
}
