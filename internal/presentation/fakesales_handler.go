package presentation

import (
	"context"
	"net/http"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/auth"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/presentation/helpers"
	"github.com/go-chi/chi/v5"
)

type FakeSalesAPI interface {
	Once(ctx context.Context) (domain.SyntheticSale, error)
}

type FakeSalesHandler struct {
	gen        FakeSalesAPI
	token      string
	cronSecret string
}

func NewFakeSalesHandler(gen FakeSalesAPI, token, cronSecret string) *FakeSalesHandler {
	return &FakeSalesHandler{gen: gen, token: token, cronSecret: cronSecret}
}

func (h *FakeSalesHandler) Register(r chi.Router) {
	r.With(auth.RequireAdminOrBearer(h.token)).Post("/api/fake-sales", h.Trigger)

	cron := r.With(auth.RequireAdminOrSecret(h.cronSecret))
	cron.Get("/api/cron/fake-sales", h.Trigger)
	cron.Post("/api/cron/fake-sales", h.Trigger)
}

func (h *FakeSalesHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	sale, err := h.gen.Once(r.Context())
	if err != nil {
		helpers.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"success":   false,
			"error":     "Failed to send to Slack",
			"details":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Fake sale sent to Slack",
		"customer":  sale.CustomerName,
		"agent":     sale.AgentName,
		"provider":  sale.SelectedProvider,
		"source":    sale.Source,
		"timestamp": time.Now().UTC(),
	})
}
