package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/service"
	"go.uber.org/zap"
)

// DepositHandler handles HTTP requests for PIX deposits.
type DepositHandler struct {
	depositSvc *service.DepositService
}

// NewDepositHandler creates a new DepositHandler instance.
func NewDepositHandler(depositSvc *service.DepositService) *DepositHandler {
	return &DepositHandler{depositSvc: depositSvc}
}

// CreateDepositRequest represents the request body for initiating a deposit.
type CreateDepositRequest struct {
	Amount string `json:"amount"`
}

// CreateDeposit handles POST /v1/deposits
// It opens a PIX charge and returns the QR materials with 201 Created.
func (h *DepositHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
		return
	}

	resp, err := h.depositSvc.Initiate(r.Context(), actorID, amount)
	if err != nil {
		if errors.Is(err, models.ErrAmountOutOfRange) {
			RespondError(w, r, http.StatusBadRequest, "deposit/amount-out-of-range", err.Error())
			return
		}
		zap.L().Error("create deposit failed", zap.Error(err))
		RespondError(w, r, http.StatusBadGateway, "deposit/create-failed", "Failed to create deposit")
		return
	}

	RespondJSON(w, http.StatusCreated, resp)
}

// GetDeposit handles GET /v1/deposits/{id}
// It returns the deposit's current status for client-side polling.
func (h *DepositHandler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	depositID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-deposit-id", "Invalid deposit ID")
		return
	}

	deposit, err := h.depositSvc.Status(r.Context(), depositID)
	if err != nil {
		if errors.Is(err, models.ErrTransactionNotFound) {
			RespondError(w, r, http.StatusNotFound, "deposit/not-found", "Deposit not found")
			return
		}
		zap.L().Error("get deposit failed", zap.Error(err), zap.String("deposit_id", depositID.String()))
		RespondError(w, r, http.StatusInternalServerError, "deposit/read-failed", "Failed to get deposit")
		return
	}
	if !isAdmin && deposit.PlayerID != actorID {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "insufficient permissions")
		return
	}

	RespondJSON(w, http.StatusOK, deposit)
}
