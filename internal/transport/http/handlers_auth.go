package httptransport

import (
	"encoding/json"
	"net/http"

	"lithipos/internal/platform/middleware"
	"lithipos/internal/transport/http/shared"
	dErrors "lithipos/pkg/errors"
)

type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Username == "" || req.PIN == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "username and pin are required"))
		return
	}

	token, err := h.operators.Login(ctx, req.Username, req.PIN)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.logger.WarnContext(ctx, "login rejected",
				"username", req.Username,
				"request_id", middleware.GetRequestID(ctx),
			)
			shared.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "login failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "login failed"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, loginResponse{Token: token})
}
