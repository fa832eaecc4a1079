package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/models"
	"github.com/platbet/wallet-core/internal/repository"
	"github.com/stretchr/testify/require"
)

func testCharge(ref string) ChargeMaterials {
	return ChargeMaterials{
		GatewayRef: ref,
		QRPayload:  "qr-" + ref,
		CopyPaste:  "copy-" + ref,
		ExpiresAt:  time.Now().Add(30 * time.Minute),
	}
}

func TestCreateWithdrawalReservesFunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 10_000)

	tx, err := ledger.CreateWithdrawal(ctx, playerID, 4_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceGame)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, tx.Status)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(6_000), wallet.GameBalance)
}

func TestCreateWithdrawalInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 1_000)

	_, err := ledger.CreateWithdrawal(ctx, playerID, 5_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceGame)
	require.ErrorIs(t, err, models.ErrInsufficientBalance)

	// The failed attempt must leave no transaction and an untouched balance.
	n, err := store.Queries().CountTransactionsByStatus(ctx, domain.TxTypeWithdrawal, domain.TxStatusPending)
	require.NoError(t, err)
	require.Zero(t, n)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), wallet.GameBalance)
}

func TestApplyCompletionCreditsDepositOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)

	tx, err := ledger.CreateDeposit(ctx, playerID, 2_500, testCharge("CHG-ONCE"))
	require.NoError(t, err)

	require.NoError(t, ledger.ApplyCompletion(ctx, tx.ID))
	require.ErrorIs(t, ledger.ApplyCompletion(ctx, tx.ID), models.ErrAlreadyTerminal)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(2_500), wallet.GameBalance)

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestApplyRejectionRefundsWithdrawalOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 8_000)

	tx, err := ledger.CreateWithdrawal(ctx, playerID, 3_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceGame)
	require.NoError(t, err)

	require.NoError(t, ledger.ApplyRejection(ctx, tx.ID, domain.TxStatusRejected, "manual rejection", nil))
	require.ErrorIs(t, ledger.ApplyRejection(ctx, tx.ID, domain.TxStatusRejected, "again", nil), models.ErrAlreadyTerminal)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(8_000), wallet.GameBalance)

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusRejected, got.Status)
	require.NotNil(t, got.RejectReason)
	require.Equal(t, "manual rejection", *got.RejectReason)
}

func TestApplyRejectionRefundsInvestSource(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedPlayer(t, db, domain.AccountStatusActive)
	seedWalletBalance(t, db, playerID, 0, 6_000)

	tx, err := ledger.CreateWithdrawal(ctx, playerID, 2_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceInvest)
	require.NoError(t, err)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(4_000), wallet.InvestBalance)

	require.NoError(t, ledger.ApplyRejection(ctx, tx.ID, domain.TxStatusRejected, "kyc review", nil))

	wallet, err = store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(6_000), wallet.InvestBalance)
	require.Equal(t, int64(0), wallet.GameBalance)
}

func TestConcurrentCompletionCreditsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)

	tx, err := ledger.CreateDeposit(ctx, playerID, 1_000, testCharge("CHG-RACE"))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.ApplyCompletion(ctx, tx.ID)
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, models.ErrAlreadyTerminal)
	}
	require.Equal(t, 1, succeeded)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), wallet.GameBalance)
}

func TestConcurrentWithdrawalsReserveAtMostBalance(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 100_000)

	// Two withdrawals of 80k against 100k: only one reservation can win.
	const workers = 2
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CreateWithdrawal(ctx, playerID, 80_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceGame)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, insufficient int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, models.ErrInsufficientBalance)
		insufficient++
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, insufficient)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(20_000), wallet.GameBalance)

	n, err := store.Queries().CountTransactionsByStatus(ctx, domain.TxTypeWithdrawal, domain.TxStatusPending)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestDuplicateGatewayRefRejected(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	ledger := NewLedgerService(store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)

	_, err := ledger.CreateDeposit(ctx, playerID, 1_000, testCharge("CHG-DUP"))
	require.NoError(t, err)

	_, err = ledger.CreateDeposit(ctx, playerID, 1_000, testCharge("CHG-DUP"))
	require.ErrorIs(t, err, models.ErrDuplicateGatewayRef)
}

func TestCompletionRejectedForUnknownTransaction(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ledger := NewLedgerService(repository.NewStore(db))
	err := ledger.ApplyCompletion(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrTransactionNotFound))
}
