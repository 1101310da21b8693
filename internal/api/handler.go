// Package api exposes the billing service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/internal/billing"
	"github.com/vnmchuo/agentboard-billing/internal/telemetry"
	"github.com/vnmchuo/agentboard-billing/pkg/ratelimit"
)

type Handler struct {
	billing  *billing.Service
	limiter  *ratelimit.Limiter
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler wires the HTTP handlers. A nil limiter disables throttling of
// invoice generation.
func NewHandler(svc *billing.Service, limiter *ratelimit.Limiter, logger *zap.Logger) *Handler {
	return &Handler{
		billing:  svc,
		limiter:  limiter,
		validate: validator.New(),
		logger:   logger,
	}
}

type generateInvoiceRequest struct {
	TeamID      string     `json:"team_id" validate:"required"`
	PeriodStart *time.Time `json:"period_start" validate:"required"`
	PeriodEnd   *time.Time `json:"period_end" validate:"required"`
	TaxRate     float64    `json:"tax_rate" validate:"gte=0"`
	Notes       *string    `json:"notes"`
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "billing-service",
		"version": telemetry.ServiceVersion,
	})
}

func (h *Handler) HandleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, req.TeamID)
		if err != nil {
			h.logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
		} else if !allowed {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60s")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":       "rate limit exceeded",
				"retry_after": "60s",
			})
			return
		}
	}

	inv, err := h.billing.GenerateInvoice(ctx, billing.GenerateRequest{
		TeamID:      req.TeamID,
		PeriodStart: *req.PeriodStart,
		PeriodEnd:   *req.PeriodEnd,
		TaxRate:     req.TaxRate,
		Notes:       req.Notes,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	filter := billing.Filter{TeamID: r.URL.Query().Get("team_id")}
	if s := r.URL.Query().Get("status"); s != "" {
		status, err := billing.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}

	invoices, err := h.billing.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.billing.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleInvoiceSummary(w http.ResponseWriter, r *http.Request) {
	inv, err := h.billing.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv.Summary())
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	status, err := billing.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, err := h.billing.UpdateStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleInvoiceFromPayment(w http.ResponseWriter, r *http.Request) {
	inv, err := h.billing.InvoiceFromPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) HandleAddPayment(w http.ResponseWriter, r *http.Request) {
	inv, err := h.billing.AddPayment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "paymentID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) HandleSessionCost(w http.ResponseWriter, r *http.Request) {
	cost, err := h.billing.PriceSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cost)
}

func (h *Handler) HandleBillingSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.billing.Summary(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleReconciliation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.billing.Reconcile(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, billing.ErrNoUsageInPeriod), errors.Is(err, billing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrInvalidPeriod), errors.Is(err, billing.ErrInvalidTaxRate),
		errors.Is(err, billing.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, billing.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, billing.ErrUpstreamUnavailable), errors.Is(err, billing.ErrMalformedInput):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid field " + fe.Field() + ": failed " + fe.Tag()
	}
	return "invalid request body"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
