// Package ziplookup resolves ZIP codes to city/state through a chain of public
// geocoding APIs, a bundled fallback table and a bounded TTL cache.
package ziplookup

import (
	"context"
	_ "embed"
	"encoding/json"
	"regexp"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

//go:embed fallback.json
var fallbackJSON []byte

const SourceFallback = "fallback"

var zipRe = regexp.MustCompile(`^\d{5}$`)

func ValidZip(zip string) bool {
	return zipRe.MatchString(zip)
}

type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	// per geocoder call
	Timeout time.Duration
	// nil means the embedded table
	Fallback map[string]Place
}

type Adapter struct {
	geocoders []Geocoder
	fallback  map[string]Place
	timeout   time.Duration
	cache     *expirable.LRU[string, domain.ZipLookupResult]
	group     singleflight.Group
}

func New(geocoders []Geocoder, opts Options) *Adapter {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 10000
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 4 * time.Second
	}
	fb := opts.Fallback
	if fb == nil {
		fb = DefaultFallback()
	}
	return &Adapter{
		geocoders: geocoders,
		fallback:  fb,
		timeout:   opts.Timeout,
		cache:     expirable.NewLRU[string, domain.ZipLookupResult](opts.CacheSize, nil, opts.CacheTTL),
	}
}

// DefaultFallback decodes the bundled table. A decode failure yields an empty table.
func DefaultFallback() map[string]Place {
	var raw map[string]struct {
		City  string `json:"city"`
		State string `json:"state"`
	}
	if err := json.Unmarshal(fallbackJSON, &raw); err != nil {
		logger.Warn("zip fallback table unreadable", "err", err)
		return map[string]Place{}
	}
	out := make(map[string]Place, len(raw))
	for zip, p := range raw {
		out[zip] = Place{City: p.City, State: p.State}
	}
	return out
}

// Lookup never returns an error: "not found anywhere" and "every endpoint
// failed" both come back as Found=false.
func (a *Adapter) Lookup(ctx context.Context, zip string) domain.ZipLookupResult {
	if !ValidZip(zip) {
		return domain.ZipLookupResult{ZipCode: zip}
	}
	if r, ok := a.cache.Get(zip); ok {
		return r
	}

	v, _, _ := a.group.Do(zip, func() (interface{}, error) {
		r := a.resolve(ctx, zip)
		if r.Found {
			a.cache.Add(zip, r)
		}
		return r, nil
	})
	return v.(domain.ZipLookupResult)
}

func (a *Adapter) resolve(ctx context.Context, zip string) domain.ZipLookupResult {
	for _, g := range a.geocoders {
		if ctx.Err() != nil {
			break
		}
		cctx, cancel := context.WithTimeout(ctx, a.timeout)
		p, err := g.Lookup(cctx, zip)
		cancel()
		if err == nil && p.City != "" && p.State != "" {
			return domain.ZipLookupResult{ZipCode: zip, City: p.City, State: p.State, Found: true, Source: g.Name()}
		}
		logger.Debug("geocoder miss", "geocoder", g.Name(), "zip", zip, "err", err)
	}

	if p, ok := a.fallback[zip]; ok {
		return domain.ZipLookupResult{ZipCode: zip, City: p.City, State: p.State, Found: true, Source: SourceFallback}
	}
	return domain.ZipLookupResult{ZipCode: zip}
}

func (a *Adapter) cacheLen() int {
	return a.cache.Len()
}
