package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/gateway"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/observability"
	"github.com/platbet/wallet-core/internal/repository"
	"go.uber.org/zap"
)

// DepositService turns a player-initiated amount into a pending PIX charge
// and converges it to a terminal state via webhook or polling. Both paths end
// in the same LedgerService entry point, whose per-id exclusivity makes the
// race harmless.
type DepositService struct {
	store   QueryStore
	gateway gateway.Gateway
	ledger  *LedgerService
	audit   *AuditService

	minDeposit int64
	maxDeposit int64
}

// DepositBounds carries the externally configured amount limits, in centavos.
type DepositBounds struct {
	Min int64
	Max int64
}

func NewDepositService(store QueryStore, gw gateway.Gateway, ledger *LedgerService, bounds DepositBounds) *DepositService {
	return &DepositService{
		store:      store,
		gateway:    gw,
		ledger:     ledger,
		audit:      NewAuditService(),
		minDeposit: bounds.Min,
		maxDeposit: bounds.Max,
	}
}

// DepositInitiation is returned to the caller for QR display; rendering is
// out of scope here.
type DepositInitiation struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	QRPayload     string    `json:"qr"`
	CopyPaste     string    `json:"copy_paste"`
	ExpiresAt     time.Time `json:"expires_at"`
	Amount        string    `json:"amount"`
}

// Initiate validates the amount, opens a charge at the gateway and stores the
// PENDING transaction. Gateway failures surface to the player as retryable;
// nothing has been persisted at that point.
func (s *DepositService) Initiate(ctx context.Context, playerID uuid.UUID, amount int64) (*DepositInitiation, error) {
	if amount < s.minDeposit || amount > s.maxDeposit {
		return nil, fmt.Errorf("deposit of %s outside [%s, %s]: %w",
			domain.NewMoney(amount), domain.NewMoney(s.minDeposit), domain.NewMoney(s.maxDeposit),
			models.ErrAmountOutOfRange)
	}

	charge, err := s.gateway.CreateCharge(ctx, amount, playerID.String())
	if err != nil {
		observability.IncrementDeposit("gateway_error")
		return nil, fmt.Errorf("create charge: %w", err)
	}

	tx, err := s.ledger.CreateDeposit(ctx, playerID, amount, ChargeMaterials{
		GatewayRef: charge.GatewayRef,
		QRPayload:  charge.QRPayload,
		CopyPaste:  charge.CopyPaste,
		ExpiresAt:  charge.ExpiresAt,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateGatewayRef) {
			// The gateway handed out a reference we already track; the
			// charge is already being processed.
			existing, lookupErr := s.store.Queries().GetTransactionByGatewayRef(ctx, charge.GatewayRef)
			if lookupErr == nil {
				return initiationFromTransaction(existing), nil
			}
		}
		return nil, err
	}

	observability.IncrementDeposit("initiated")
	return initiationFromTransaction(tx), nil
}

func initiationFromTransaction(t models.Transaction) *DepositInitiation {
	out := &DepositInitiation{
		TransactionID: t.ID,
		QRPayload:     t.QRPayload,
		CopyPaste:     t.CopyPaste,
		Amount:        domain.NewMoney(t.Amount).String(),
	}
	if t.ExpiresAt != nil {
		out.ExpiresAt = *t.ExpiresAt
	}
	return out
}

// Status returns the deposit's current status for client-side polling. A
// pending charge past its expiry reads as EXPIRED before the sweep lands.
// While the charge is pending, the gateway is polled; a paid report converges
// through ApplyCompletion, safely racing the webhook path.
func (s *DepositService) Status(ctx context.Context, txID uuid.UUID) (models.Transaction, error) {
	t, err := s.store.Queries().GetTransaction(ctx, txID)
	if err != nil {
		return models.Transaction{}, err
	}
	if t.Type != domain.TxTypeDeposit {
		return models.Transaction{}, models.ErrTransactionNotFound
	}
	if t.Status != domain.TxStatusPending {
		return t, nil
	}

	if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now()) {
		t.Status = domain.TxStatusExpired
		return t, nil
	}

	if t.GatewayRef == nil {
		return t, nil
	}
	external, err := s.gateway.GetCharge(ctx, *t.GatewayRef)
	if err != nil {
		// Poll failures are non-fatal; the webhook path still converges.
		zap.L().Warn("charge poll failed", zap.Error(err), zap.String("transaction_id", txID.String()))
		return t, nil
	}

	switch external {
	case gateway.ChargeStatusPaid:
		err = s.ledger.ApplyCompletion(ctx, txID)
	case gateway.ChargeStatusCancelled:
		err = s.ledger.ApplyRejection(ctx, txID, domain.TxStatusCancelled, "cancelled at gateway", nil)
	case gateway.ChargeStatusExpired:
		err = s.ledger.ApplyRejection(ctx, txID, domain.TxStatusExpired, "expired at gateway", nil)
	default:
		return t, nil
	}
	if err != nil && !errors.Is(err, models.ErrAlreadyTerminal) {
		return models.Transaction{}, err
	}
	observability.IncrementDeposit("poll_converged")
	return s.store.Queries().GetTransaction(ctx, txID)
}

// SweepExpired transitions stale PENDING deposits to terminal EXPIRED so they
// stop being polled. The row locks taken by the sweep UPDATE serialize it
// against a racing completion: exactly one of the two wins.
func (s *DepositService) SweepExpired(ctx context.Context) (int, error) {
	var expired []uuid.UUID
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		ids, err := qtx.ExpireStaleDeposits(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.audit.Write(ctx, qtx, "transaction", id, nil, "expired", domain.TxStatusPending, domain.TxStatusExpired, nil); err != nil {
				return err
			}
		}
		expired = ids
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		observability.AddDepositsExpired(len(expired))
		zap.L().Info("expired stale deposits", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}
