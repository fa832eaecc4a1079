package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/repository"
)

// LedgerService owns all wallet balance mutations and terminal status
// transitions. Workflows never touch balances directly; they create and
// transition transactions through this service, and every mutation executes
// inside one database transaction keyed by the row lock on the transaction id.
// That lock is what makes completion and rejection at-most-once under
// duplicate webhooks, racing polls and concurrent admin actions.
type LedgerService struct {
	store QueryStore
	audit *AuditService
}

func NewLedgerService(store QueryStore) *LedgerService {
	return &LedgerService{
		store: store,
		audit: NewAuditService(),
	}
}

// ChargeMaterials carries the gateway's charge output stored on a deposit.
type ChargeMaterials struct {
	GatewayRef string
	QRPayload  string
	CopyPaste  string
	ExpiresAt  time.Time
}

// CreateDeposit records a PENDING deposit carrying the gateway charge
// materials. A duplicate gateway_ref surfaces models.ErrDuplicateGatewayRef,
// which callers treat as "already being processed".
func (s *LedgerService) CreateDeposit(ctx context.Context, playerID uuid.UUID, amount int64, charge ChargeMaterials) (models.Transaction, error) {
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("invalid amount: %d", amount)
	}

	txID := uuid.New()
	ref := charge.GatewayRef
	expires := charge.ExpiresAt
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if err := qtx.EnsureWallet(ctx, playerID); err != nil {
			return err
		}
		if err := qtx.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:         txID,
			PlayerID:   playerID,
			Type:       domain.TxTypeDeposit,
			Amount:     amount,
			Status:     domain.TxStatusPending,
			GatewayRef: &ref,
			QRPayload:  charge.QRPayload,
			CopyPaste:  charge.CopyPaste,
			ExpiresAt:  &expires,
		}); err != nil {
			return err
		}
		return s.audit.Write(ctx, qtx, "transaction", txID, nil, "deposit_created", "", domain.TxStatusPending, nil)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return s.store.Queries().GetTransaction(ctx, txID)
}

// CreateWithdrawal reserves the funds and records a PENDING withdrawal in one
// atomic step. The conditional debit is the balance check; zero affected rows
// means models.ErrInsufficientBalance and no transaction is created.
func (s *LedgerService) CreateWithdrawal(ctx context.Context, playerID uuid.UUID, amount int64, pixKey, pixKeyType, fundSource string) (models.Transaction, error) {
	if amount <= 0 {
		return models.Transaction{}, fmt.Errorf("invalid amount: %d", amount)
	}
	if !domain.ValidFundSource(fundSource) {
		return models.Transaction{}, fmt.Errorf("invalid fund source: %q", fundSource)
	}

	txID := uuid.New()
	err := s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		if err := qtx.EnsureWallet(ctx, playerID); err != nil {
			return err
		}
		rows, err := qtx.DebitBalanceIfSufficient(ctx, playerID, fundSource, amount)
		if err != nil {
			return err
		}
		if rows == 0 {
			return models.ErrInsufficientBalance
		}
		if err := qtx.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:         txID,
			PlayerID:   playerID,
			Type:       domain.TxTypeWithdrawal,
			Amount:     amount,
			Status:     domain.TxStatusPending,
			FundSource: fundSource,
			PixKey:     pixKey,
			PixKeyType: pixKeyType,
		}); err != nil {
			return err
		}
		return s.audit.Write(ctx, qtx, "transaction", txID, nil, "withdrawal_created", "", domain.TxStatusPending, nil)
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return s.store.Queries().GetTransaction(ctx, txID)
}

// ApplyCompletion finalizes a transaction exactly once: deposits credit the
// game balance and become COMPLETED, withdrawals become PAID (the debit
// happened at creation time). A second caller observes
// models.ErrAlreadyTerminal and no balance change.
func (s *LedgerService) ApplyCompletion(ctx context.Context, txID uuid.UUID) error {
	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		t, err := qtx.GetTransactionForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if domain.IsTerminal(t.Type, t.Status) {
			return models.ErrAlreadyTerminal
		}

		var next string
		switch t.Type {
		case domain.TxTypeDeposit:
			next = domain.TxStatusCompleted
		case domain.TxTypeWithdrawal:
			next = domain.TxStatusPaid
		default:
			return fmt.Errorf("completion not supported for type %s", t.Type)
		}
		if !domain.CanTransition(t.Type, t.Status, next) {
			return fmt.Errorf("%w: %s %s -> %s", models.ErrInvalidTransition, t.Type, t.Status, next)
		}

		if t.Type == domain.TxTypeDeposit {
			rows, err := qtx.CreditBalance(ctx, t.PlayerID, domain.FundSourceGame, t.Amount)
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "credit deposit"); err != nil {
				return err
			}
		}

		rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
			ID:     txID,
			Status: next,
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "complete transaction"); err != nil {
			return err
		}
		return s.audit.Write(ctx, qtx, "transaction", txID, nil, "completed", t.Status, next, nil)
	})
}

// ApplyRejection moves a transaction to the given terminal failure status
// exactly once. Withdrawals get their reserved funds credited back to the
// source balance; this refund happens once and only once per transaction id.
func (s *LedgerService) ApplyRejection(ctx context.Context, txID uuid.UUID, terminalStatus, reason string, actorID *uuid.UUID) error {
	terminalStatus = domain.NormalizeStatus(terminalStatus)
	return s.store.RunInTx(ctx, func(qtx *repository.Queries) error {
		t, err := qtx.GetTransactionForUpdate(ctx, txID)
		if err != nil {
			return err
		}
		if domain.IsTerminal(t.Type, t.Status) {
			return models.ErrAlreadyTerminal
		}
		if !domain.CanTransition(t.Type, t.Status, terminalStatus) {
			return fmt.Errorf("%w: %s %s -> %s", models.ErrInvalidTransition, t.Type, t.Status, terminalStatus)
		}

		if t.Type == domain.TxTypeWithdrawal {
			rows, err := qtx.CreditBalance(ctx, t.PlayerID, t.FundSource, t.Amount)
			if err != nil {
				return err
			}
			if err := requireExactlyOne(rows, "refund withdrawal"); err != nil {
				return err
			}
		}

		rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
			ID:           txID,
			Status:       terminalStatus,
			RejectReason: textParam(reason),
		})
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "reject transaction"); err != nil {
			return err
		}

		metadata, err := marshalReasonMetadata(reason)
		if err != nil {
			return fmt.Errorf("marshal rejection metadata: %w", err)
		}
		return s.audit.Write(ctx, qtx, "transaction", txID, actorID, "rejected", t.Status, terminalStatus, metadata)
	})
}

// transitionTransactionState advances a non-terminal transaction inside an
// open database transaction, writing the audit row alongside. Terminal rows
// return models.ErrAlreadyTerminal; a row already in the target state returns
// models.ErrInvalidTransition, so a repeated approval conflicts instead of
// silently succeeding and re-running its side effects.
func transitionTransactionState(ctx context.Context, qtx *repository.Queries, audit *AuditService, txID uuid.UUID, nextState string, actorID *uuid.UUID, action string, metadata []byte) error {
	t, err := qtx.GetTransactionForUpdate(ctx, txID)
	if err != nil {
		return err
	}
	if domain.IsTerminal(t.Type, t.Status) {
		return models.ErrAlreadyTerminal
	}
	if !domain.CanTransition(t.Type, t.Status, nextState) {
		return fmt.Errorf("%w: %s %s -> %s", models.ErrInvalidTransition, t.Type, t.Status, nextState)
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		ID:     txID,
		Status: nextState,
	})
	if err != nil {
		return err
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return err
	}
	return audit.Write(ctx, qtx, "transaction", txID, actorID, action, t.Status, nextState, metadata)
}
