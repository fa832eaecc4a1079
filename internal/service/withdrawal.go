package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/gateway"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/observability"
	"github.com/platbet/wallet-core/internal/repository"
	"go.uber.org/zap"
)

// WithdrawalService reserves funds at request time and releases them on
// rejection or sends them externally on approval. The approval policy itself
// is pure (domain.Decide); this service feeds it and acts on the outcome.
type WithdrawalService struct {
	store    QueryStore
	gateway  gateway.Gateway
	ledger   *LedgerService
	settings *SettingsService
	audit    *AuditService

	minWithdrawal int64
	maxWithdrawal int64
}

// WithdrawalBounds carries the externally configured amount limits, in centavos.
type WithdrawalBounds struct {
	Min int64
	Max int64
}

func NewWithdrawalService(store QueryStore, gw gateway.Gateway, ledger *LedgerService, settings *SettingsService, bounds WithdrawalBounds) *WithdrawalService {
	return &WithdrawalService{
		store:         store,
		gateway:       gw,
		ledger:        ledger,
		settings:      settings,
		audit:         NewAuditService(),
		minWithdrawal: bounds.Min,
		maxWithdrawal: bounds.Max,
	}
}

// Withdrawal outcomes surfaced to the caller.
const (
	OutcomeProcessing = "processing"
	OutcomeQueued     = "queued"
	OutcomeRejected   = "rejected"
)

// InitiateWithdrawalRequest holds the parameters for a new withdrawal.
type InitiateWithdrawalRequest struct {
	PlayerID   uuid.UUID
	Amount     int64
	PixKey     string
	PixKeyType string
	FundSource string
}

// WithdrawalResult reports what happened to an initiated withdrawal.
type WithdrawalResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Outcome       string    `json:"outcome"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
}

// Initiate validates the request, reserves the funds atomically with the
// transaction insert, and dispatches on the approval policy: auto-approved
// withdrawals go straight to the gateway, queued ones wait for an admin, and
// rejected ones are refunded immediately with the policy's reason.
func (s *WithdrawalService) Initiate(ctx context.Context, req InitiateWithdrawalRequest) (*WithdrawalResult, error) {
	if req.Amount < s.minWithdrawal || req.Amount > s.maxWithdrawal {
		return nil, fmt.Errorf("withdrawal of %s outside [%s, %s]: %w",
			domain.NewMoney(req.Amount), domain.NewMoney(s.minWithdrawal), domain.NewMoney(s.maxWithdrawal),
			models.ErrAmountOutOfRange)
	}
	if strings.TrimSpace(req.PixKey) == "" {
		return nil, models.ErrMissingPixKey
	}
	if !domain.ValidPixKeyType(req.PixKeyType) {
		return nil, fmt.Errorf("invalid pix key type: %q", req.PixKeyType)
	}
	if !domain.ValidFundSource(req.FundSource) {
		return nil, fmt.Errorf("invalid fund source: %q", req.FundSource)
	}

	queries := s.store.Queries()
	player, err := queries.GetPlayer(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	kyc, err := queries.GetKYCRecord(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := s.ledger.CreateWithdrawal(ctx, req.PlayerID, req.Amount, req.PixKey, req.PixKeyType, req.FundSource)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientBalance) {
			observability.IncrementWithdrawal("insufficient_balance")
		}
		return nil, err
	}

	decision, reason := domain.Decide(domain.PolicyInput{
		AmountCentavos:     req.Amount,
		AutoApprovalLimit:  settings.AutoApprovalLimit,
		KYCStatus:          kyc.Status,
		AccountStatus:      player.Status,
		RequireVerifiedKYC: settings.RequireVerifiedKYC,
	})

	switch decision {
	case domain.DecisionReject:
		if err := s.ledger.ApplyRejection(ctx, tx.ID, domain.TxStatusRejected, reason, nil); err != nil {
			return nil, err
		}
		observability.IncrementWithdrawal("policy_rejected")
		return &WithdrawalResult{TransactionID: tx.ID, Outcome: OutcomeRejected, Status: domain.TxStatusRejected, Reason: reason}, nil

	case domain.DecisionQueue:
		observability.IncrementWithdrawal("queued")
		return &WithdrawalResult{TransactionID: tx.ID, Outcome: OutcomeQueued, Status: domain.TxStatusPending}, nil

	case domain.DecisionApprove:
		status, err := s.approveAndTransfer(ctx, tx.ID, nil, "auto_approved")
		if err != nil {
			return nil, err
		}
		observability.IncrementWithdrawal("auto_approved")
		return &WithdrawalResult{TransactionID: tx.ID, Outcome: OutcomeProcessing, Status: status}, nil
	}
	return nil, fmt.Errorf("unhandled policy decision: %v", decision)
}

// Approve is the admin manual-review action: PENDING -> PROCESSING plus the
// same gateway transfer as auto-approval. A second call, or a call after
// rejection, observes models.ErrAlreadyTerminal.
func (s *WithdrawalService) Approve(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID) (models.Transaction, error) {
	if _, err := s.approveAndTransfer(ctx, txID, actorID, "manual_approved"); err != nil {
		return models.Transaction{}, err
	}
	observability.IncrementWithdrawal("manual_approved")
	return s.store.Queries().GetTransaction(ctx, txID)
}

// Reject is the admin manual-review action: refund and terminal REJECTED.
func (s *WithdrawalService) Reject(ctx context.Context, txID uuid.UUID, reason string, actorID *uuid.UUID) (models.Transaction, error) {
	t, err := s.store.Queries().GetTransaction(ctx, txID)
	if err != nil {
		return models.Transaction{}, err
	}
	if t.Type != domain.TxTypeWithdrawal {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	if err := s.ledger.ApplyRejection(ctx, txID, domain.TxStatusRejected, reason, actorID); err != nil {
		return models.Transaction{}, err
	}
	observability.IncrementWithdrawal("manual_rejected")
	return s.store.Queries().GetTransaction(ctx, txID)
}

// approveAndTransfer moves the withdrawal to PROCESSING and creates the
// gateway transfer. An immediate gateway rejection refunds through the
// rejection path; a timeout leaves the row PROCESSING, funds still reserved,
// for reconciliation or admin intervention rather than a silent loss.
func (s *WithdrawalService) approveAndTransfer(ctx context.Context, txID uuid.UUID, actorID *uuid.UUID, action string) (string, error) {
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		return transitionTransactionState(ctx, qtx, s.audit, txID, domain.TxStatusProcessing, actorID, action, nil)
	})
	if err != nil {
		return "", err
	}

	t, err := s.store.Queries().GetTransaction(ctx, txID)
	if err != nil {
		return "", err
	}

	transfer, err := s.gateway.CreateTransfer(ctx, t.Amount, t.PixKey, t.PixKeyType, t.PlayerID.String())
	if err != nil {
		if isTimeout(err) {
			zap.L().Warn("transfer creation timed out; leaving withdrawal in processing for reconciliation",
				zap.Error(err), zap.String("transaction_id", txID.String()))
			observability.IncrementWithdrawal("transfer_timeout")
			return domain.TxStatusProcessing, nil
		}
		if rejErr := s.ledger.ApplyRejection(ctx, txID, domain.TxStatusFailed, err.Error(), nil); rejErr != nil && !errors.Is(rejErr, models.ErrAlreadyTerminal) {
			return "", fmt.Errorf("transfer failed (%v) and refund failed: %w", err, rejErr)
		}
		observability.IncrementWithdrawal("transfer_failed")
		return domain.TxStatusFailed, nil
	}

	err = s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		rows, err := qtx.SetGatewayRef(ctx, txID, transfer.GatewayRef)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "set withdrawal gateway ref"); err != nil {
			return err
		}
		if !transfer.AcceptedImmediately {
			return nil
		}
		return transitionTransactionState(ctx, qtx, s.audit, txID, domain.TxStatusApproved, nil, "transfer_accepted", nil)
	})
	if err != nil {
		// The transfer exists at the gateway; the webhook for its terminal
		// state will converge the row later.
		zap.L().Error("transfer created but local update failed; awaiting reconciliation",
			zap.Error(err), zap.String("transaction_id", txID.String()), zap.String("gateway_ref", transfer.GatewayRef))
		return domain.TxStatusProcessing, nil
	}
	if transfer.AcceptedImmediately {
		return domain.TxStatusApproved, nil
	}
	return domain.TxStatusProcessing, nil
}

// Queue lists withdrawals in a review-relevant status for the admin screen,
// oldest first.
func (s *WithdrawalService) Queue(ctx context.Context, status string, limit, offset int32) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	status = domain.NormalizeStatus(status)
	if status == "" {
		status = domain.TxStatusPending
	}
	return s.store.Queries().ListTransactions(ctx, repository.ListTransactionsParams{
		Type:   domain.TxTypeWithdrawal,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
}

// QueueSize counts withdrawals waiting for manual review.
func (s *WithdrawalService) QueueSize(ctx context.Context) (int64, error) {
	return s.store.Queries().CountTransactionsByStatus(ctx, domain.TxTypeWithdrawal, domain.TxStatusPending)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
