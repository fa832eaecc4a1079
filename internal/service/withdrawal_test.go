package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/gateway"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/repository"
	"github.com/stretchr/testify/require"
)

func newWithdrawalFixture(db *repository.Store) (*WithdrawalService, *gateway.Mock, *LedgerService) {
	mock := gateway.NewMock()
	ledger := NewLedgerService(db)
	settings := NewSettingsService(db, models.Settings{AutoApprovalLimit: 50_000, RequireVerifiedKYC: true})
	svc := NewWithdrawalService(db, mock, ledger, settings, WithdrawalBounds{Min: 100, Max: 1_000_000})
	return svc, mock, ledger
}

func withdrawalRequest(playerID uuid.UUID, amount int64) InitiateWithdrawalRequest {
	return InitiateWithdrawalRequest{
		PlayerID:   playerID,
		Amount:     amount,
		PixKey:     "user@example.com",
		PixKeyType: domain.PixKeyEmail,
		FundSource: domain.FundSourceGame,
	}
}

func TestWithdrawalAutoApproved(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 30_000)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 10_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessing, result.Outcome)
	require.Equal(t, domain.TxStatusApproved, result.Status)

	tx, err := store.Queries().GetTransaction(ctx, result.TransactionID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusApproved, tx.Status)
	require.NotNil(t, tx.GatewayRef)
	require.NotNil(t, tx.ApprovedAt)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(20_000), wallet.GameBalance)
}

func TestWithdrawalQueuedAboveLimit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 200_000)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)
	require.Equal(t, domain.TxStatusPending, result.Status)

	// Funds are reserved while the withdrawal waits for review.
	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(120_000), wallet.GameBalance)

	queue, err := svc.Queue(ctx, "", 50, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Equal(t, result.TransactionID, queue[0].ID)
}

func TestWithdrawalRejectedWithoutVerifiedKYC(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedPlayer(t, db, domain.AccountStatusActive)
	seedKYC(t, db, playerID, domain.KYCStatusPending)
	seedWalletBalance(t, db, playerID, 30_000, 0)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 10_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, result.Outcome)
	require.Equal(t, domain.RejectReasonKYCNotVerified, result.Reason)

	// Reject refunds the reservation in full.
	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(30_000), wallet.GameBalance)

	tx, err := store.Queries().GetTransaction(ctx, result.TransactionID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusRejected, tx.Status)
}

func TestWithdrawalRejectedForInactiveAccount(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedPlayer(t, db, domain.AccountStatusBlocked)
	seedKYC(t, db, playerID, domain.KYCStatusVerified)
	seedWalletBalance(t, db, playerID, 30_000, 0)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 10_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, result.Outcome)
	require.Equal(t, domain.RejectReasonAccountNotActive, result.Reason)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(30_000), wallet.GameBalance)
}

func TestWithdrawalInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	svc, _, _ := newWithdrawalFixture(repository.NewStore(db))
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 5_000)

	_, err := svc.Initiate(ctx, withdrawalRequest(playerID, 10_000))
	require.ErrorIs(t, err, models.ErrInsufficientBalance)
}

func TestWithdrawalAdminApprove(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 200_000)
	adminID := seedPlayer(t, db, domain.AccountStatusActive)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)

	approved, err := svc.Approve(ctx, result.TransactionID, &adminID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusApproved, approved.Status)
	require.NotNil(t, approved.GatewayRef)

	// Approving a second time conflicts instead of double-sending.
	_, err = svc.Approve(ctx, result.TransactionID, &adminID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestWithdrawalRepeatApproveWhileProcessing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, mock, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 200_000)
	adminID := seedPlayer(t, db, domain.AccountStatusActive)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)

	// The gateway accepts the transfer but does not settle it immediately,
	// so the row stays in PROCESSING.
	mock.TransferAccepted = false

	processing, err := svc.Approve(ctx, result.TransactionID, &adminID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusProcessing, processing.Status)
	require.NotNil(t, processing.GatewayRef)
	require.Equal(t, 1, mock.TransferCount())

	// A second approval while the transfer is in flight must conflict
	// without sending another payout or touching the stored reference.
	_, err = svc.Approve(ctx, result.TransactionID, &adminID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	require.Equal(t, 1, mock.TransferCount())

	got, err := store.Queries().GetTransaction(ctx, result.TransactionID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusProcessing, got.Status)
	require.Equal(t, *processing.GatewayRef, *got.GatewayRef)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(120_000), wallet.GameBalance)
}

func TestWithdrawalApproveTransferFailureRefunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, mock, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 200_000)
	adminID := seedPlayer(t, db, domain.AccountStatusActive)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)

	mock.TransferErr = errors.New("beneficiary account closed")

	failed, err := svc.Approve(ctx, result.TransactionID, &adminID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, failed.Status)
	require.Zero(t, mock.TransferCount())

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(200_000), wallet.GameBalance)
}

func TestWithdrawalAdminRejectRefunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, _ := newWithdrawalFixture(store)
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 200_000)
	adminID := seedPlayer(t, db, domain.AccountStatusActive)

	result, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, result.Outcome)

	rejected, err := svc.Reject(ctx, result.TransactionID, "suspicious activity", &adminID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectReason)
	require.Equal(t, "suspicious activity", *rejected.RejectReason)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(200_000), wallet.GameBalance)

	// A second resolution in either direction conflicts.
	_, err = svc.Reject(ctx, result.TransactionID, "again", &adminID)
	require.ErrorIs(t, err, models.ErrAlreadyTerminal)
	_, err = svc.Approve(ctx, result.TransactionID, &adminID)
	require.ErrorIs(t, err, models.ErrAlreadyTerminal)
}

func TestWithdrawalLimitChangeAffectsOnlyNewDecisions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	mock := gateway.NewMock()
	ledger := NewLedgerService(store)
	settings := NewSettingsService(store, models.Settings{AutoApprovalLimit: 50_000, RequireVerifiedKYC: true})
	svc := NewWithdrawalService(store, mock, ledger, settings, WithdrawalBounds{Min: 100, Max: 1_000_000})
	ctx := context.Background()
	seedSettings(t, db, 50_000, true)

	playerID := seedVerifiedPlayer(t, db, 500_000)

	queued, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeQueued, queued.Outcome)

	_, err = settings.SetAutoApprovalLimit(ctx, 100_000)
	require.NoError(t, err)

	// The queued withdrawal keeps its decision.
	tx, err := store.Queries().GetTransaction(ctx, queued.TransactionID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, tx.Status)

	// A fresh withdrawal under the new limit auto-approves.
	approved, err := svc.Initiate(ctx, withdrawalRequest(playerID, 80_000))
	require.NoError(t, err)
	require.Equal(t, OutcomeProcessing, approved.Outcome)
}
