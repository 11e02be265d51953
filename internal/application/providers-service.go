package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrUnknownProvider = errors.New("unknown provider")

// ProvidersService is the provider registry plus the other admin settings
// (notifications, form gate). Reads are served from a short TTL cache; every
// write drops the cached key.
type ProvidersService struct {
	store    repository.SettingsStore
	cat      *catalog.Catalog
	cache    *expirable.LRU[string, []byte]
	defaults domain.NotificationConfig
}

func NewProvidersService(store repository.SettingsStore, cat *catalog.Catalog, ttl time.Duration, notifyDefaults domain.NotificationConfig) *ProvidersService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProvidersService{
		store:    store,
		cat:      cat,
		cache:    expirable.NewLRU[string, []byte](16, nil, ttl),
		defaults: notifyDefaults,
	}
}

// load returns the stored document for key, or nil when absent or unreadable.
func (s *ProvidersService) load(ctx context.Context, key string) []byte {
	if v, ok := s.cache.Get(key); ok {
		return v
	}
	v, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("settings read failed, using defaults", "key", key, "err", err)
			return nil
		}
		v = nil
	}
	s.cache.Add(key, v)
	return v
}

func (s *ProvidersService) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	s.cache.Remove(key)
	return nil
}

type storedProvider struct {
	ID           *string `json:"id"`
	Name         *string `json:"name"`
	Enabled      *bool   `json:"enabled"`
	DisplayOrder *int    `json:"displayOrder"`
}

// List merges stored entries over the catalog defaults, sorted by displayOrder.
// Malformed entries are dropped; ids the catalog does not know are ignored.
func (s *ProvidersService) List(ctx context.Context) []domain.Provider {
	defaults := s.cat.DefaultProviders()
	raw := s.load(ctx, repository.KeyProviderConfig)
	if raw == nil {
		return defaults
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		logger.Warn("provider_config is not an array, using defaults", "err", err)
		return defaults
	}

	stored := make(map[string]domain.Provider, len(items))
	for i, item := range items {
		var sp storedProvider
		if err := json.Unmarshal(item, &sp); err != nil || sp.ID == nil || sp.Name == nil {
			continue
		}
		p := domain.Provider{ID: *sp.ID, Name: *sp.Name, Enabled: true, DisplayOrder: i + 1}
		if sp.Enabled != nil {
			p.Enabled = *sp.Enabled
		}
		if sp.DisplayOrder != nil {
			p.DisplayOrder = *sp.DisplayOrder
		}
		stored[p.ID] = p
	}

	out := make([]domain.Provider, 0, len(defaults))
	for _, d := range defaults {
		if p, ok := stored[d.ID]; ok {
			d.Enabled, d.DisplayOrder = p.Enabled, p.DisplayOrder
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out
}

func (s *ProvidersService) Enabled(ctx context.Context) []domain.Provider {
	var out []domain.Provider
	for _, p := range s.List(ctx) {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func (s *ProvidersService) EnabledIDs(ctx context.Context) map[string]bool {
	ids := map[string]bool{}
	for _, p := range s.Enabled(ctx) {
		ids[p.ID] = true
	}
	return ids
}

// Save applies enabled/displayOrder from updates by id. Unknown ids are ignored.
func (s *ProvidersService) Save(ctx context.Context, updates []domain.Provider) ([]domain.Provider, error) {
	byID := make(map[string]domain.Provider, len(updates))
	for _, u := range updates {
		byID[u.ID] = u
	}
	list := s.List(ctx)
	for i, p := range list {
		if u, ok := byID[p.ID]; ok {
			list[i].Enabled = u.Enabled
			if u.DisplayOrder > 0 {
				list[i].DisplayOrder = u.DisplayOrder
			}
		}
	}
	if err := s.save(ctx, repository.KeyProviderConfig, list); err != nil {
		return nil, err
	}
	logger.Info("provider config saved", "providers", len(list))
	return s.List(ctx), nil
}

func (s *ProvidersService) SetEnabled(ctx context.Context, id string, enabled bool) (domain.Provider, error) {
	list := s.List(ctx)
	idx := -1
	for i, p := range list {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Provider{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}
	list[idx].Enabled = enabled
	if err := s.save(ctx, repository.KeyProviderConfig, list); err != nil {
		return domain.Provider{}, err
	}
	logger.Info("provider toggled", "provider", id, "enabled", enabled)
	return list[idx], nil
}

func (s *ProvidersService) Reset(ctx context.Context) ([]domain.Provider, error) {
	defaults := s.cat.DefaultProviders()
	if err := s.save(ctx, repository.KeyProviderConfig, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

// NotificationConfig overlays the stored document on the defaults, so a
// partial document keeps defaults for the missing keys.
func (s *ProvidersService) NotificationConfig(ctx context.Context) domain.NotificationConfig {
	cfg := s.defaults
	if raw := s.load(ctx, repository.KeyNotificationConfig); raw != nil {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			logger.Warn("notification_config unreadable, using defaults", "err", err)
			cfg = s.defaults
		}
	}
	return cfg
}

func (s *ProvidersService) SaveNotificationConfig(ctx context.Context, cfg domain.NotificationConfig) error {
	return s.save(ctx, repository.KeyNotificationConfig, cfg)
}

func DefaultFormConfig() domain.FormConfig {
	return domain.FormConfig{FormEnabled: true}
}

func (s *ProvidersService) FormConfig(ctx context.Context) domain.FormConfig {
	cfg := DefaultFormConfig()
	if raw := s.load(ctx, repository.KeyFormConfig); raw != nil {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			logger.Warn("form_config unreadable, using defaults", "err", err)
			cfg = DefaultFormConfig()
		}
	}
	return cfg
}

func (s *ProvidersService) SaveFormConfig(ctx context.Context, cfg domain.FormConfig) error {
	return s.save(ctx, repository.KeyFormConfig, cfg)
}
