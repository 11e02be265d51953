package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/application"
	"github.com/RaikyD/isp-order-intake/internal/coverage"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
	"github.com/RaikyD/isp-order-intake/internal/presentation/helpers"
	"github.com/RaikyD/isp-order-intake/internal/ziplookup"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type OrdersAPI interface {
	Submit(ctx context.Context, order domain.Order, meta application.Meta) (application.Receipt, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.SubmissionRecord, error)
	Sweep(ctx context.Context, limit int) (application.SweepResult, error)
	Stats(ctx context.Context) (map[domain.SubmissionStatus]int, error)
}

type AvailabilityAPI interface {
	Check(ctx context.Context, zip string) (application.Availability, error)
}

type OrdersHandler struct {
	svc       OrdersAPI
	avail     AvailabilityAPI
	validator *orderform.Validator
	now       func() time.Time
}

func NewOrdersHandler(svc OrdersAPI, avail AvailabilityAPI, v *orderform.Validator) *OrdersHandler {
	return &OrdersHandler{svc: svc, avail: avail, validator: v, now: time.Now}
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/api/submit-form", h.SubmitReady)
	r.Post("/api/submit-form", h.Submit)
	r.Get("/api/submissions/{id}", h.GetSubmission)
	r.Post("/api/form/state", h.FormState)
}

func (h *OrdersHandler) SubmitReady(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"message": "Form submission endpoint ready"})
}

func (h *OrdersHandler) Submit(w http.ResponseWriter, r *http.Request) {
	raw, err := helpers.ReadBody(r)
	if errors.Is(err, helpers.ErrEmptyBody) {
		// warm-up pings post nothing
		helpers.WriteJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Empty request"})
		return
	}
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "could not read body")
		return
	}

	var ord domain.Order
	if err := json.Unmarshal(raw, &ord); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	meta := application.Meta{
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		IPAddress:      clientIP(r),
		RequestID:      middleware.GetReqID(r.Context()),
	}
	rec, err := h.svc.Submit(r.Context(), ord, meta)
	if err != nil {
		writeSubmitError(w, r, err)
		return
	}

	status := http.StatusCreated
	switch {
	case rec.Duplicate:
		status = http.StatusOK
	case rec.Status == application.StatusQueued:
		status = http.StatusAccepted
	}
	helpers.WriteJSON(w, status, map[string]any{
		"success":        true,
		"message":        "Form submitted successfully",
		"submissionId":   rec.ID,
		"status":         rec.Status,
		"duplicate":      rec.Duplicate,
		"submissionDate": rec.SubmissionDate,
		"results":        rec.Results,
	})
}

func writeSubmitError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *orderform.ValidationError
		fe *application.FormDisabledError
	)
	switch {
	case errors.As(err, &ve):
		helpers.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "validation failed",
			"fields":  ve.Fields,
		})
	case errors.As(err, &fe):
		msg := fe.Message
		if msg == "" {
			msg = "The order form is currently unavailable."
		}
		helpers.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "form disabled", "message": msg})
	case errors.Is(err, application.ErrProviderNotAvailable):
		helpers.WriteJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, coverage.ErrCoverageNotLoaded):
		helpers.HttpError(w, http.StatusServiceUnavailable, "coverage data is still loading")
	default:
		logger.With("request_id", middleware.GetReqID(r.Context())).Errorw("submit failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to submit form")
	}
}

func maskSSN(ssn string) string {
	d := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, ssn)
	if len(d) < 4 {
		return ""
	}
	return "***-**-" + d[len(d)-4:]
}

func (h *OrdersHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "id must be a UUID")
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, application.ErrNotFound) {
		helpers.HttpError(w, http.StatusNotFound, "submission not found")
		return
	}
	if err != nil {
		logger.Error("get submission failed", "submission_id", id, "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "failed to get submission")
		return
	}
	cp := *rec
	cp.Submission.SSN = maskSSN(cp.Submission.SSN)
	helpers.WriteJSON(w, http.StatusOK, &cp)
}

// FormState evaluates a draft against the step rules, checking the ZIP's
// availability when the draft carries a well-formed one.
func (h *OrdersHandler) FormState(w http.ResponseWriter, r *http.Request) {
	var draft domain.Order
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, helpers.MaxBody)).Decode(&draft); err != nil {
		helpers.HttpError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var (
		avail *orderform.Availability
		found *application.Availability
	)
	if ziplookup.ValidZip(draft.ZipCode) {
		a, err := h.avail.Check(r.Context(), draft.ZipCode)
		if errors.Is(err, coverage.ErrCoverageNotLoaded) {
			helpers.HttpError(w, http.StatusServiceUnavailable, "coverage data is still loading")
			return
		}
		if err != nil {
			helpers.HttpError(w, http.StatusInternalServerError, "availability check failed")
			return
		}
		avail = &orderform.Availability{ZipCode: a.ZipCode, Providers: a.Providers}
		found = &a
	}

	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"state":        h.validator.Evaluate(draft, avail, h.now()),
		"availability": found,
	})
}

// SweepTimeout bounds an on-demand sweep. It outlives the router's request
// timeout so claimed rows are not cut off half way and charged an attempt.
const SweepTimeout = 10 * time.Minute

// Sweep delivers due outbox rows on demand.
func (h *OrdersHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), SweepTimeout)
	defer cancel()
	res, err := h.svc.Sweep(ctx, limit)
	if err != nil {
		logger.Error("sweep failed", "err", err)
		helpers.HttpError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

func clientIP(r *http.Request) string {
	// RealIP middleware has already folded X-Forwarded-For into RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
