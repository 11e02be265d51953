package application

import (
	"context"
	"strings"

	"github.com/RaikyD/isp-order-intake/internal/coverage"
	"github.com/RaikyD/isp-order-intake/internal/domain"
)

type ZipLookup interface {
	Lookup(ctx context.Context, zip string) domain.ZipLookupResult
}

type EnabledProviders interface {
	EnabledIDs(ctx context.Context) map[string]bool
}

const (
	CityFromGeocoder = "geocoder"
	CityFromDataset  = "dataset"
)

type Availability struct {
	ZipCode         string         `json:"zipCode"`
	Found           bool           `json:"found"`
	City            string         `json:"city,omitempty"`
	State           string         `json:"state,omitempty"`
	CityStateSource string         `json:"cityStateSource,omitempty"`
	LookupSource    string         `json:"lookupSource,omitempty"`
	Providers       []string       `json:"providers"`
	Debug           map[string]int `json:"debugInfo,omitempty"`
}

// offers reports whether provider (by display name, any casing) is in matched.
func offers(matched []string, provider string) bool {
	provider = strings.TrimSpace(provider)
	for _, p := range matched {
		if strings.EqualFold(p, provider) {
			return true
		}
	}
	return false
}

type AvailabilityService struct {
	lookup    ZipLookup
	matcher   *coverage.Matcher
	providers EnabledProviders
}

func NewAvailabilityService(l ZipLookup, m *coverage.Matcher, p EnabledProviders) *AvailabilityService {
	return &AvailabilityService{lookup: l, matcher: m, providers: p}
}

// Providers matches enabled providers for zip without calling any geocoder.
func (s *AvailabilityService) Providers(ctx context.Context, zip string) ([]string, error) {
	m, err := s.matcher.Match(zip, s.providers.EnabledIDs(ctx))
	if err != nil {
		return nil, err
	}
	return m.Providers, nil
}

// Check resolves the ZIP and matches enabled providers. When both the geocoder
// and a coverage dataset know the city, the geocoder wins.
func (s *AvailabilityService) Check(ctx context.Context, zip string) (Availability, error) {
	m, err := s.matcher.Match(zip, s.providers.EnabledIDs(ctx))
	if err != nil {
		return Availability{}, err
	}
	res := Availability{ZipCode: zip, Providers: m.Providers, Debug: m.Debug}

	geo := s.lookup.Lookup(ctx, zip)
	switch {
	case geo.Found:
		res.Found = true
		res.City, res.State = geo.City, geo.State
		res.CityStateSource = CityFromGeocoder
		res.LookupSource = geo.Source
	case m.City != "" || m.State != "":
		res.Found = true
		res.City, res.State = m.City, m.State
		res.CityStateSource = CityFromDataset
	}
	return res, nil
}
