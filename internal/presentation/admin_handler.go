package presentation

import (
	"context"
	"errors"
	"net/http"

	"github.com/RaikyD/isp-order-intake/internal/application"
	"github.com/RaikyD/isp-order-intake/internal/auth"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
)

type SchedulerAPI interface {
	Start(ctx context.Context) bool
	Stop()
	Active() bool
}

type AdminHandler struct {
	auth      *auth.Authenticator
	providers ProvidersAPI
	orders    OrdersAPI
	scheduler SchedulerAPI
}

func NewAdminHandler(a *auth.Authenticator, p ProvidersAPI, o OrdersAPI, s SchedulerAPI) *AdminHandler {
	return &AdminHandler{auth: a, providers: p, orders: o, scheduler: s}
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/providers", h.ListProviders)
			r.Post("/providers", h.SaveProviders)
			r.Post("/providers/reset", h.ResetProviders)
			r.Post("/providers/{id}/toggle", h.ToggleProvider)
			r.Get("/notifications", h.GetNotifications)
			r.Put("/notifications", h.PutNotifications)
			r.Get("/form-config", h.GetFormConfig)
			r.Put("/form-config", h.PutFormConfig)
			r.Get("/stats", h.Stats)
			r.Get("/fake-sales/scheduler", h.SchedulerStatus)
			r.Post("/fake-sales/scheduler", h.SchedulerControl)
		})
	})
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	token, exp, err := h.auth.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrNotConfigured):
		helpers.HttpError(w, http.StatusServiceUnavailable, "admin login is not configured")
		return
	case err != nil:
		logger.Warn("admin login failed", "remote", r.RemoteAddr)
		helpers.HttpError(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"token": token, "expiresAt": exp})
}

func (h *AdminHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"providers": h.providers.List(r.Context())})
}

func (h *AdminHandler) SaveProviders(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Providers []domain.Provider `json:"providers"`
	}
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	list, err := h.providers.Save(r.Context(), req.Providers)
	if err != nil {
		logger.Error("save providers failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to save providers")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "providers": list})
}

func (h *AdminHandler) ResetProviders(w http.ResponseWriter, r *http.Request) {
	list, err := h.providers.Reset(r.Context())
	if err != nil {
		logger.Error("reset providers failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to reset providers")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "providers": list})
}

func (h *AdminHandler) ToggleProvider(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := helpers.DecodeJSON(r.Body, &req); err != nil || req.Enabled == nil {
		helpers.HttpError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	p, err := h.providers.SetEnabled(r.Context(), chi.URLParam(r, "id"), *req.Enabled)
	if errors.Is(err, application.ErrUnknownProvider) {
		helpers.HttpError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Error("toggle provider failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to update provider")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "provider": p})
}

func (h *AdminHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, h.providers.NotificationConfig(r.Context()))
}

func (h *AdminHandler) PutNotifications(w http.ResponseWriter, r *http.Request) {
	// start from the current document so a partial body keeps the other keys
	cfg := h.providers.NotificationConfig(r.Context())
	if err := helpers.DecodeJSON(r.Body, &cfg); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.providers.SaveNotificationConfig(r.Context(), cfg); err != nil {
		logger.Error("save notification config failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to save notification config")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, cfg)
}

func (h *AdminHandler) GetFormConfig(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, h.providers.FormConfig(r.Context()))
}

func (h *AdminHandler) PutFormConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.providers.FormConfig(r.Context())
	if err := helpers.DecodeJSON(r.Body, &cfg); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.providers.SaveFormConfig(r.Context(), cfg); err != nil {
		logger.Error("save form config failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to save form config")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, cfg)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		logger.Error("submission stats failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	out := map[string]int{}
	for _, s := range []domain.SubmissionStatus{domain.StatusPending, domain.StatusDone, domain.StatusDead} {
		out[string(s)] = stats[s]
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

func (h *AdminHandler) SchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"active": h.scheduler.Active()})
}

func (h *AdminHandler) SchedulerControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	changed := false
	switch req.Action {
	case "start":
		// the loop outlives this request; shutdown stops it
		changed = h.scheduler.Start(context.WithoutCancel(r.Context()))
	case "stop":
		changed = h.scheduler.Active()
		h.scheduler.Stop()
	default:
		helpers.HttpError(w, http.StatusBadRequest, `action must be "start" or "stop"`)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"active": h.scheduler.Active(), "changed": changed})
}
