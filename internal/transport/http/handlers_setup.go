package httptransport

import (
	"encoding/json"
	"net/http"

	"lithipos/internal/platform/middleware"
	"lithipos/internal/transport/http/shared"
	dErrors "lithipos/pkg/errors"
)

type fetchDeviceIDRequest struct {
	SerialNumber string `json:"serialNumber"`
}

type fetchDeviceIDResponse struct {
	DeviceID string `json:"deviceId"`
}

func (h *Handler) handleFetchDeviceID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req fetchDeviceIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	deviceID, err := h.fiscal.FetchAuthorityDeviceID(ctx, req.SerialNumber)
	if err != nil {
		h.writeServiceError(w, r, "fetch device id failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, fetchDeviceIDResponse{DeviceID: deviceID})
}

type generateKeysRequest struct {
	DeviceID     string `json:"deviceId"`
	SerialNumber string `json:"serialNumber"`
}

type generateKeysResponse struct {
	CSR string `json:"csr"`
}

func (h *Handler) handleGenerateKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.DeviceID == "" || req.SerialNumber == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "deviceId and serialNumber are required"))
		return
	}

	csr, err := h.fiscal.GenerateDeviceKeys(ctx, req.DeviceID, req.SerialNumber)
	if err != nil {
		h.writeServiceError(w, r, "key generation failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, generateKeysResponse{CSR: csr})
}

type registerRequest struct {
	DeviceID string `json:"deviceId"`
	CSR      string `json:"csr"`
}

type registerResponse struct {
	Certificate string `json:"certificate"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.DeviceID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "deviceId is required"))
		return
	}

	cert, err := h.fiscal.CompleteRegistration(ctx, req.DeviceID, req.CSR)
	if err != nil {
		h.writeServiceError(w, r, "registration failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, registerResponse{Certificate: cert})
}

// writeServiceError logs unexpected failures and passes coded errors through
// untouched so the client sees the right status.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}
