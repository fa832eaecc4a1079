package handler

import (
	"encoding/json"
	"net/http"

	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/service"
	"go.uber.org/zap"
)

// ConfigHandler exposes the admin wallet configuration endpoints.
type ConfigHandler struct {
	settingsSvc *service.SettingsService
}

// NewConfigHandler creates a new ConfigHandler instance.
func NewConfigHandler(settingsSvc *service.SettingsService) *ConfigHandler {
	return &ConfigHandler{settingsSvc: settingsSvc}
}

// GetSettings handles GET /v1/config (admin only).
func (h *ConfigHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsSvc.Get(r.Context())
	if err != nil {
		zap.L().Error("get settings failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "config/read-failed", "Failed to read settings")
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}

type updateAutoApprovalLimitRequest struct {
	Limit string `json:"limit"`
}

// UpdateAutoApprovalLimit handles PATCH /v1/config/auto-approval-limit (admin only).
// The new limit applies to decisions made after the write; queued and in-flight
// withdrawals keep the decision they already received.
func (h *ConfigHandler) UpdateAutoApprovalLimit(w http.ResponseWriter, r *http.Request) {
	var req updateAutoApprovalLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	limit, err := domain.ParseLimit(req.Limit)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", err.Error())
		return
	}

	settings, err := h.settingsSvc.SetAutoApprovalLimit(r.Context(), limit)
	if err != nil {
		zap.L().Error("update auto approval limit failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "config/update-failed", "Failed to update auto approval limit")
		return
	}
	RespondJSON(w, http.StatusOK, settings)
}
