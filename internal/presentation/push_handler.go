package presentation

import (
	"context"
	"net/http"
	"strings"

	"github.com/RaikyD/isp-order-intake/internal/auth"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
)

type PushStore interface {
	Save(ctx context.Context, sub domain.PushSubscription) error
	Count(ctx context.Context) (int, error)
}

type PushHandler struct {
	store     PushStore
	publicKey string
}

func NewPushHandler(store PushStore, vapidPublicKey string) *PushHandler {
	return &PushHandler{store: store, publicKey: vapidPublicKey}
}

func (h *PushHandler) Register(r chi.Router) {
	r.Get("/api/push/public-key", h.PublicKey)
	r.Post("/api/push/subscribe", h.Subscribe)
	r.With(auth.RequireAdmin).Get("/api/push/subscriptions", h.Count)
}

func (h *PushHandler) PublicKey(w http.ResponseWriter, _ *http.Request) {
	if h.publicKey == "" {
		helpers.HttpError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"publicKey": h.publicKey})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	// browsers send PushSubscription.toJSON(), which also carries expirationTime
	var req struct {
		domain.PushSubscription
		ExpirationTime *int64 `json:"expirationTime"`
	}
	if err := helpers.DecodeJSON(r.Body, &req); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	sub := req.PushSubscription
	if !strings.HasPrefix(sub.Endpoint, "https://") || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		helpers.HttpError(w, http.StatusBadRequest, "subscription needs an https endpoint and p256dh/auth keys")
		return
	}
	if err := h.store.Save(r.Context(), sub); err != nil {
		logger.Error("save push subscription failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, map[string]any{"success": true})
}

func (h *PushHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Count(r.Context())
	if err != nil {
		logger.Error("count push subscriptions failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to count subscriptions")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]int{"count": n})
}
