package coverage

import (
	"errors"
	"io/fs"
	"sync"

	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/logger"
)

var ErrCoverageNotLoaded = errors.New("coverage datasets not loaded")

type Match struct {
	ZipCode   string         `json:"zipCode"`
	Providers []string       `json:"providers"`
	City      string         `json:"city,omitempty"`
	State     string         `json:"state,omitempty"`
	Debug     map[string]int `json:"debugInfo,omitempty"`
}

// Matcher answers which providers serve a ZIP. Datasets are immutable once loaded.
type Matcher struct {
	mu         sync.RWMutex
	regional   []*Dataset
	nationwide []catalog.ProviderSpec
	loaded     bool
}

func NewMatcher(nationwide []catalog.ProviderSpec) *Matcher {
	return &Matcher{nationwide: nationwide}
}

// Load reads every regional provider's dataset from fsys. A missing or broken
// file leaves that provider with an empty set; it never fails the whole load.
func (m *Matcher) Load(fsys fs.FS, specs []catalog.ProviderSpec) {
	sets := make([]*Dataset, 0, len(specs))
	for _, spec := range specs {
		var d *Dataset
		if spec.Dataset != "" && fsys != nil {
			var err error
			d, err = readDataset(fsys, spec.Dataset)
			if err != nil {
				logger.Warn("coverage dataset not loaded", "provider", spec.Name, "file", spec.Dataset, "err", err)
				d = nil
			}
		}
		if d == nil {
			d = &Dataset{zips: map[string]struct{}{}}
		}
		d.ProviderID = spec.ID
		d.Name = spec.Name
		if spec.Service != "" {
			d.Service = spec.Service
		}
		logger.Info("coverage loaded", "provider", spec.Name, "zips", d.Len(), "sheet", d.Sheet)
		sets = append(sets, d)
	}
	m.Set(sets)
}

// Set replaces the datasets wholesale and marks the matcher ready.
func (m *Matcher) Set(sets []*Dataset) {
	m.mu.Lock()
	m.regional = sets
	m.loaded = true
	m.mu.Unlock()
}

func (m *Matcher) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Match does not validate the ZIP format; callers do.
func (m *Matcher) Match(zip string, enabled map[string]bool) (Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.loaded {
		return Match{}, ErrCoverageNotLoaded
	}

	res := Match{ZipCode: zip, Providers: []string{}, Debug: map[string]int{}}
	for _, d := range m.regional {
		if !enabled[d.ProviderID] || !d.Has(zip) {
			continue
		}
		// city/state come from the first matched dataset
		if len(res.Providers) == 0 {
			res.City, res.State = d.City, d.State
		}
		res.Providers = append(res.Providers, d.Name)
		res.Debug[d.Name] = d.Len()
	}

	for _, p := range m.nationwide {
		if enabled[p.ID] {
			res.Providers = append(res.Providers, p.Name)
		}
	}
	return res, nil
}

// dataset returns the loaded set for a provider id, nil when unknown.
func (m *Matcher) dataset(providerID string) *Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.regional {
		if d.ProviderID == providerID {
			return d
		}
	}
	return nil
}
