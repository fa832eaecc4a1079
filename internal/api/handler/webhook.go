package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/platbet/wallet-core/internal/gateway"
	"github.com/platbet/wallet-core/internal/service"
	"go.uber.org/zap"
)

// WebhookHandler handles incoming PIX gateway notifications.
type WebhookHandler struct {
	reconSvc *service.ReconciliationService
	gateway  gateway.Gateway
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(reconSvc *service.ReconciliationService, gw gateway.Gateway) *WebhookHandler {
	return &WebhookHandler{reconSvc: reconSvc, gateway: gw}
}

type pixWebhookPayload struct {
	GatewayRef string `json:"gateway_ref"`
	Status     string `json:"status"`
}

// HandlePixWebhook handles POST /v1/webhooks/pix
// It verifies the HMAC signature and converges the referenced transaction.
// Unknown references are parked and acknowledged so the gateway stops retrying.
func (h *WebhookHandler) HandlePixWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		zap.L().Error("read webhook body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	signature := r.Header.Get("X-Webhook-Signature")
	if !h.gateway.VerifyWebhookSignature(body, signature) {
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
		return
	}

	var payload pixWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid webhook payload")
		return
	}
	if payload.GatewayRef == "" || payload.Status == "" {
		RespondError(w, r, http.StatusBadRequest, "webhook/missing-fields", "gateway_ref and status are required")
		return
	}

	err = h.reconSvc.HandleEvent(r.Context(), service.Event{
		GatewayRef: payload.GatewayRef,
		Status:     payload.Status,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		if errors.Is(err, service.ErrUnknownGatewayRef) {
			RespondJSON(w, http.StatusOK, map[string]string{"status": "parked"})
			return
		}
		zap.L().Error("process pix webhook failed", zap.Error(err), zap.String("gateway_ref", payload.GatewayRef))
		RespondError(w, r, http.StatusInternalServerError, "webhook/processing-failed", "Failed to process webhook")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
