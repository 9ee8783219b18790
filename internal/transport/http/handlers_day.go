package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lithipos/internal/transport/http/shared"
)

type openDayResponse struct {
	FiscalDayNo int `json:"fiscalDayNo"`
}

func (h *Handler) handleOpenDay(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	dayNo, err := h.fiscal.OpenDay(r.Context(), deviceID)
	if err != nil {
		h.writeServiceError(w, r, "open day failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, openDayResponse{FiscalDayNo: dayNo})
}

func (h *Handler) handleCloseDay(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	if err := h.fiscal.CloseDay(r.Context(), deviceID); err != nil {
		h.writeServiceError(w, r, "close day failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	status, err := h.fiscal.GetDeviceStatus(r.Context(), deviceID)
	if err != nil {
		h.writeServiceError(w, r, "device status failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, status)
}
