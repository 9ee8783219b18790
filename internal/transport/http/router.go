// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// the fiscal orchestrator, and encode; business rules live below.
package httptransport

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lithipos/internal/platform/middleware"
)

// Handler handles the POS-facing endpoints.
type Handler struct {
	fiscal    FiscalService
	operators OperatorService
	logger    *slog.Logger
	validator middleware.JWTValidator
}

func NewHandler(
	fiscal FiscalService,
	operators OperatorService,
	validator middleware.JWTValidator,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		fiscal:    fiscal,
		operators: operators,
		logger:    logger,
		validator: validator,
	}
}

// NewRouter wires all endpoints. Everything under /api except login requires
// an operator token.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.With(middleware.ContentTypeJSON).Post("/auth/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.validator, h.logger))

			r.Route("/setup", func(r chi.Router) {
				r.Use(middleware.ContentTypeJSON)
				r.Post("/fetch-device-id", h.handleFetchDeviceID)
				r.Post("/generate-keys", h.handleGenerateKeys)
				r.Post("/register", h.handleRegister)
			})

			r.Route("/devices/{deviceID}", func(r chi.Router) {
				r.Get("/status", h.handleDeviceStatus)
				r.Post("/day/open", h.handleOpenDay)
				r.Post("/day/close", h.handleCloseDay)
				r.With(middleware.ContentTypeJSON).Post("/receipts", h.handleSubmitReceipt)
				r.Get("/receipts", h.handleListReceipts)
				r.Get("/receipts/{globalNo}", h.handleGetReceipt)
				r.Get("/receipts/{globalNo}/qr", h.handleReceiptQR)
			})
		})
	})

	return r
}
