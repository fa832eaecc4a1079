package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/observability"
	"github.com/platbet/wallet-core/internal/service"
	"go.uber.org/zap"
)

// WithdrawalHandler handles HTTP requests for PIX withdrawals.
type WithdrawalHandler struct {
	withdrawalSvc *service.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler instance.
func NewWithdrawalHandler(withdrawalSvc *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalSvc: withdrawalSvc}
}

// CreateWithdrawalRequest represents the request body for initiating a withdrawal.
type CreateWithdrawalRequest struct {
	Amount     string `json:"amount"`
	PixKey     string `json:"pix_key"`
	PixKeyType string `json:"pix_key_type"`
	FundSource string `json:"fund_source"`
}

// CreateWithdrawal handles POST /v1/withdrawals
// The response carries the policy outcome: processing, queued or rejected.
func (h *WithdrawalHandler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}

	var req CreateWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-amount", err.Error())
		return
	}
	if req.FundSource == "" {
		req.FundSource = domain.FundSourceGame
	}

	resp, err := h.withdrawalSvc.Initiate(r.Context(), service.InitiateWithdrawalRequest{
		PlayerID:   actorID,
		Amount:     amount,
		PixKey:     req.PixKey,
		PixKeyType: req.PixKeyType,
		FundSource: req.FundSource,
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAmountOutOfRange):
			RespondError(w, r, http.StatusBadRequest, "withdrawal/amount-out-of-range", err.Error())
		case errors.Is(err, models.ErrInsufficientBalance):
			RespondError(w, r, http.StatusBadRequest, "withdrawal/insufficient-balance", "insufficient balance")
		case errors.Is(err, models.ErrMissingPixKey):
			RespondError(w, r, http.StatusBadRequest, "withdrawal/missing-pix-key", "pix_key is required")
		default:
			zap.L().Error("create withdrawal failed", zap.Error(err))
			RespondError(w, r, http.StatusInternalServerError, "withdrawal/create-failed", "Failed to create withdrawal")
		}
		return
	}

	RespondJSON(w, http.StatusAccepted, resp)
}

// ListReviewQueue handles GET /v1/withdrawals/queue (admin only).
func (h *WithdrawalHandler) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	limit := int32(50)
	offset := int32(0)
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be a positive integer")
			return
		}
		limit = int32(parsed)
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return
		}
		offset = int32(parsed)
	}

	items, err := h.withdrawalSvc.Queue(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		zap.L().Error("list review queue failed", zap.Error(err))
		RespondError(w, r, http.StatusInternalServerError, "withdrawal/queue-list-failed", "Failed to list review queue")
		return
	}
	total, err := h.withdrawalSvc.QueueSize(r.Context())
	if err != nil {
		zap.L().Warn("failed to compute review queue size", zap.Error(err))
		total = int64(len(items))
	}
	observability.SetReviewQueueSize(total)
	RespondJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"limit":       limit,
		"offset":      offset,
		"count":       len(items),
		"total_count": total,
	})
}

// ApproveWithdrawal handles POST /v1/withdrawals/{id}/approve (admin only).
func (h *WithdrawalHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	withdrawalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-withdrawal-id", "Invalid withdrawal ID")
		return
	}

	result, err := h.withdrawalSvc.Approve(r.Context(), withdrawalID, &actorID)
	if err != nil {
		respondResolutionError(w, r, err, withdrawalID, "approve")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

type rejectWithdrawalRequest struct {
	Reason string `json:"reason"`
}

// RejectWithdrawal handles POST /v1/withdrawals/{id}/reject (admin only).
func (h *WithdrawalHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return
	}
	withdrawalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-withdrawal-id", "Invalid withdrawal ID")
		return
	}

	var req rejectWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		RespondError(w, r, http.StatusBadRequest, "request/missing-reason", "reason is required")
		return
	}

	result, err := h.withdrawalSvc.Reject(r.Context(), withdrawalID, req.Reason, &actorID)
	if err != nil {
		respondResolutionError(w, r, err, withdrawalID, "reject")
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

func respondResolutionError(w http.ResponseWriter, r *http.Request, err error, withdrawalID uuid.UUID, action string) {
	switch {
	case errors.Is(err, models.ErrTransactionNotFound):
		RespondError(w, r, http.StatusNotFound, "withdrawal/not-found", "Withdrawal not found")
	case errors.Is(err, models.ErrAlreadyTerminal):
		RespondError(w, r, http.StatusConflict, "withdrawal/already-resolved", "Withdrawal already resolved")
	case errors.Is(err, models.ErrInvalidTransition):
		RespondError(w, r, http.StatusConflict, "withdrawal/invalid-state", "Withdrawal is not in a resolvable state")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error("resolve withdrawal failed",
			zap.Error(err), zap.String("withdrawal_id", withdrawalID.String()), zap.String("action", action))
		RespondError(w, r, http.StatusInternalServerError, "withdrawal/resolve-failed", "Failed to resolve withdrawal")
	}
}
