// Package catalog holds the static product data agents pick from: providers,
// their packages, add-ons and installation windows.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
	Speed string `yaml:"speed,omitempty" json:"speed,omitempty"`
	Price string `yaml:"price,omitempty" json:"price,omitempty"`
}

// Describe renders the option the way it appears in notifications, e.g.
// "Fiber 500 - 500 Mbps - $70/mo".
func (o Option) Describe() string {
	parts := []string{o.Label}
	if o.Speed != "" && o.Speed != o.Label {
		parts = append(parts, o.Speed)
	}
	if o.Price != "" {
		parts = append(parts, o.Price)
	}
	return strings.Join(parts, " - ")
}

type ProviderSpec struct {
	ID         string   `yaml:"id" json:"id"`
	Name       string   `yaml:"name" json:"name"`
	Service    string   `yaml:"service,omitempty" json:"service,omitempty"`
	Dataset    string   `yaml:"dataset,omitempty" json:"-"`
	Nationwide bool     `yaml:"nationwide,omitempty" json:"nationwide,omitempty"`
	Packages   []Option `yaml:"packages" json:"packages"`
}

type InstallRules struct {
	MinDaysAhead   int      `yaml:"minDaysAhead" json:"minDaysAhead"`
	MaxDaysAhead   int      `yaml:"maxDaysAhead" json:"maxDaysAhead"`
	ClosedWeekdays []string `yaml:"closedWeekdays" json:"closedWeekdays"`
}

type Catalog struct {
	Providers       []ProviderSpec `yaml:"providers" json:"providers"`
	DirectvPackages []Option       `yaml:"directvPackages" json:"directvPackages"`
	AddOns          []Option       `yaml:"addOns" json:"addOns"`
	TimeWindows     []Option       `yaml:"timeWindows" json:"timeWindows"`
	Install         InstallRules   `yaml:"install" json:"install"`
	Agents          []string       `yaml:"agents" json:"-"`

	closed map[time.Weekday]bool
}

// Load parses the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns the embedded catalog. It panics if the embedded file is broken,
// which only a bad build can cause.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) init() error {
	if len(c.Providers) == 0 {
		return errors.New("catalog: no providers")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("catalog: provider without id or name: %+v", p)
		}
		if seen[p.ID] {
			return fmt.Errorf("catalog: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}

	c.closed = make(map[time.Weekday]bool)
	for _, name := range c.Install.ClosedWeekdays {
		wd, ok := parseWeekday(name)
		if !ok {
			return fmt.Errorf("catalog: unknown weekday %q", name)
		}
		c.closed[wd] = true
	}
	if c.Install.MaxDaysAhead == 0 {
		c.Install.MaxDaysAhead = 14
	}
	return nil
}

// DefaultProviders is the seed registry: everything enabled, in file order.
func (c *Catalog) DefaultProviders() []domain.Provider {
	out := make([]domain.Provider, 0, len(c.Providers))
	for i, p := range c.Providers {
		out = append(out, domain.Provider{ID: p.ID, Name: p.Name, Enabled: true, DisplayOrder: i + 1})
	}
	return out
}

// ProviderByName matches case-insensitively; order forms carry display names.
func (c *Catalog) ProviderByName(name string) (ProviderSpec, bool) {
	name = strings.TrimSpace(name)
	for _, p := range c.Providers {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ProviderSpec{}, false
}

func (c *Catalog) Regional() []ProviderSpec {
	var out []ProviderSpec
	for _, p := range c.Providers {
		if !p.Nationwide {
			out = append(out, p)
		}
	}
	return out
}

func (c *Catalog) Nationwide() []ProviderSpec {
	var out []ProviderSpec
	for _, p := range c.Providers {
		if p.Nationwide {
			out = append(out, p)
		}
	}
	return out
}

func (c *Catalog) Package(providerName, value string) (Option, bool) {
	p, ok := c.ProviderByName(providerName)
	if !ok {
		return Option{}, false
	}
	return find(p.Packages, value)
}

func (c *Catalog) AddOn(value string) (Option, bool)          { return find(c.AddOns, value) }
func (c *Catalog) TimeWindow(value string) (Option, bool)     { return find(c.TimeWindows, value) }
func (c *Catalog) DirectvPackage(value string) (Option, bool) { return find(c.DirectvPackages, value) }

func (c *Catalog) ClosedOn(wd time.Weekday) bool {
	return c.closed[wd]
}

func find(opts []Option, value string) (Option, bool) {
	for _, o := range opts {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

func parseWeekday(s string) (time.Weekday, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, true
		}
	}
	return 0, false
}
