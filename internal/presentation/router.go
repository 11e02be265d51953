package presentation

import (
	"net/http"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/auth"
	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	Orders       OrdersAPI
	Providers    ProvidersAPI
	Availability AvailabilityAPI
	Validator    *orderform.Validator
	Catalog      *catalog.Catalog
	Coverage     Readiness
	Push         PushStore
	FakeSales    FakeSalesAPI
	Scheduler    SchedulerAPI
	Auth         *auth.Authenticator

	VAPIDPublicKey string
	FakeSalesToken string
	CronSecret     string
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(d.Auth.Middleware)

	NewCatalogHandler(d.Catalog, d.Providers, d.Availability, d.Coverage).Register(r)

	oh := NewOrdersHandler(d.Orders, d.Availability, d.Validator)
	oh.Register(r)
	r.With(auth.RequireAdminOrSecret(d.CronSecret)).Post("/api/process-queue", oh.Sweep)

	NewPushHandler(d.Push, d.VAPIDPublicKey).Register(r)
	NewFakeSalesHandler(d.FakeSales, d.FakeSalesToken, d.CronSecret).Register(r)
	NewAdminHandler(d.Auth, d.Providers, d.Orders, d.Scheduler).Register(r)

	MountStatic(r)
	return r
}
