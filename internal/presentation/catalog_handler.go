package presentation

import (
	"context"
	"errors"
	"net/http"

	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/coverage"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
)

type ProvidersAPI interface {
	List(ctx context.Context) []domain.Provider
	Enabled(ctx context.Context) []domain.Provider
	Save(ctx context.Context, updates []domain.Provider) ([]domain.Provider, error)
	SetEnabled(ctx context.Context, id string, enabled bool) (domain.Provider, error)
	Reset(ctx context.Context) ([]domain.Provider, error)
	NotificationConfig(ctx context.Context) domain.NotificationConfig
	SaveNotificationConfig(ctx context.Context, cfg domain.NotificationConfig) error
	FormConfig(ctx context.Context) domain.FormConfig
	SaveFormConfig(ctx context.Context, cfg domain.FormConfig) error
}

type Readiness interface {
	Ready() bool
}

// CatalogHandler serves the read-only data the order form is built from.
type CatalogHandler struct {
	cat       *catalog.Catalog
	providers ProvidersAPI
	avail     AvailabilityAPI
	coverage  Readiness
}

func NewCatalogHandler(cat *catalog.Catalog, p ProvidersAPI, a AvailabilityAPI, cov Readiness) *CatalogHandler {
	return &CatalogHandler{cat: cat, providers: p, avail: a, coverage: cov}
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/api/catalog", h.Catalog)
	r.Get("/api/providers", h.Providers)
	r.Get("/api/zip/{zip}", h.Zip)
}

func (h *CatalogHandler) Health(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"coverageLoaded": h.coverage.Ready(),
	})
}

func (h *CatalogHandler) Catalog(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, h.cat)
}

func (h *CatalogHandler) Providers(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"providers": h.providers.Enabled(r.Context())})
}

// Zip reports which enabled providers serve a ZIP. Malformed ZIPs are not
// rejected: they match no regional dataset, so only nationwide providers come back.
func (h *CatalogHandler) Zip(w http.ResponseWriter, r *http.Request) {
	zip := chi.URLParam(r, "zip")
	a, err := h.avail.Check(r.Context(), zip)
	if errors.Is(err, coverage.ErrCoverageNotLoaded) {
		helpers.HttpError(w, http.StatusServiceUnavailable, "coverage data is still loading")
		return
	}
	if err != nil {
		logger.Error("availability check failed", "zip", zip, "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "availability check failed")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, a)
}
