package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vnmchuo/agentboard-billing/internal/telemetry"
)

// NewRouter mounts the billing API under prefix, plus /health and /metrics.
func NewRouter(h *Handler, prefix string, metrics *telemetry.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger(logger, metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", h.HandleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route(prefix, func(r chi.Router) {
		r.Post("/invoices", h.HandleGenerateInvoice)
		r.Get("/invoices", h.HandleListInvoices)
		r.Post("/invoices/from-payment/{paymentID}", h.HandleInvoiceFromPayment)
		r.Get("/invoices/{id}", h.HandleGetInvoice)
		r.Patch("/invoices/{id}", h.HandleUpdateStatus)
		r.Get("/invoices/{id}/summary", h.HandleInvoiceSummary)
		r.Post("/invoices/{id}/payments/{paymentID}", h.HandleAddPayment)

		r.Get("/sessions/{id}/cost", h.HandleSessionCost)

		r.Get("/billing/summary", h.HandleBillingSummary)
		r.Get("/billing/reconciliation", h.HandleReconciliation)
	})

	return r
}

// RequestLogger logs every request with zap and records request metrics by
// chi route pattern.
func RequestLogger(logger *zap.Logger, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

			logger.Info("http request",
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", elapsed),
			)
		})
	}
}
