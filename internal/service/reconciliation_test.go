package service

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/gateway"
	"github.com/platbet/wallet-core/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/1"
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.Ping(ctx).Err(), "redis must be reachable for reconciliation tests")
	require.NoError(t, client.Del(ctx, parkedEventsKey).Err())
	t.Cleanup(func() { client.Close() })
	return client
}

func newReconFixture(t *testing.T, store *repository.Store) (*ReconciliationService, *LedgerService, *redis.Client) {
	rdb := setupTestRedis(t)
	ledger := NewLedgerService(store)
	return NewReconciliationService(store, ledger, rdb), ledger, rdb
}

func TestWebhookCompletesDeposit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, _ := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)
	tx, err := ledger.CreateDeposit(ctx, playerID, 4_000, testCharge("dep-recon-1"))
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(ctx, Event{GatewayRef: "dep-recon-1", Status: "PAID"}))

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, got.Status)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(4_000), wallet.GameBalance)
}

func TestWebhookDuplicateDeliveryIsNoop(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, _ := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)
	_, err := ledger.CreateDeposit(ctx, playerID, 4_000, testCharge("dep-recon-dup"))
	require.NoError(t, err)

	ev := Event{GatewayRef: "dep-recon-dup", Status: "PAID"}
	require.NoError(t, svc.HandleEvent(ctx, ev))
	require.NoError(t, svc.HandleEvent(ctx, ev))

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(4_000), wallet.GameBalance)
}

func TestWebhookFailedWithdrawalRefunds(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, _ := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 50_000)
	tx, err := ledger.CreateWithdrawal(ctx, playerID, 20_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceGame)
	require.NoError(t, err)

	ref := "wd-recon-fail"
	_, err = store.Queries().SetGatewayRef(ctx, tx.ID, ref)
	require.NoError(t, err)

	// Gateways report expiry and cancellation too; withdrawals always refund
	// through FAILED.
	require.NoError(t, svc.HandleEvent(ctx, Event{GatewayRef: ref, Status: "EXPIRED"}))

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusFailed, got.Status)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(50_000), wallet.GameBalance)
}

func TestWebhookUnknownRefParksAndRetries(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, rdb := newReconFixture(t, store)
	ctx := context.Background()

	err := svc.HandleEvent(ctx, Event{GatewayRef: "dep-out-of-order", Status: "PAID"})
	require.ErrorIs(t, err, ErrUnknownGatewayRef)

	length, err := rdb.LLen(ctx, parkedEventsKey).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), length)

	// The first drain still cannot match the event; it goes back on the list.
	applied, err := svc.RetryParked(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)

	playerID := seedVerifiedPlayer(t, db, 0)
	tx, err := ledger.CreateDeposit(ctx, playerID, 7_500, testCharge("dep-out-of-order"))
	require.NoError(t, err)

	applied, err = svc.RetryParked(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, got.Status)

	length, err = rdb.LLen(ctx, parkedEventsKey).Result()
	require.NoError(t, err)
	require.Zero(t, length)
}

func TestRetryParkedKeepsEventWhenApplyFails(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, rdb := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 50_000)
	tx, err := ledger.CreateWithdrawal(ctx, playerID, 20_000, "user@example.com", domain.PixKeyEmail, domain.FundSourceGame)
	require.NoError(t, err)

	ref := "wd-parked-early"
	_, err = store.Queries().SetGatewayRef(ctx, tx.ID, ref)
	require.NoError(t, err)

	// A paid report for a still-PENDING withdrawal cannot apply yet; the
	// gateway was already acked, so the event must survive the failed drain.
	parked, err := json.Marshal(Event{GatewayRef: ref, Status: "PAID", ReceivedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(ctx, parkedEventsKey, parked).Err())

	applied, err := svc.RetryParked(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)

	length, err := rdb.LLen(ctx, parkedEventsKey).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), length)

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, got.Status)
}

func TestRetryParkedDropsAgedEvents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, _, rdb := newReconFixture(t, store)
	ctx := context.Background()

	stale, err := json.Marshal(Event{
		GatewayRef: "dep-ancient",
		Status:     "PAID",
		ReceivedAt: time.Now().Add(-25 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(ctx, parkedEventsKey, stale).Err())

	applied, err := svc.RetryParked(ctx)
	require.NoError(t, err)
	require.Zero(t, applied)

	length, err := rdb.LLen(ctx, parkedEventsKey).Result()
	require.NoError(t, err)
	require.Zero(t, length)
}

func TestWebhookConflictingStatusAfterCompletion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, _ := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)
	tx, err := ledger.CreateDeposit(ctx, playerID, 4_000, testCharge("dep-recon-conflict"))
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(ctx, Event{GatewayRef: "dep-recon-conflict", Status: "PAID"}))

	// An out-of-order cancellation after settlement is acked but changes
	// nothing.
	require.NoError(t, svc.HandleEvent(ctx, Event{GatewayRef: "dep-recon-conflict", Status: "CANCELLED"}))

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusCompleted, got.Status)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(4_000), wallet.GameBalance)
}

func TestWebhookPaidAfterExpiryDoesNotCredit(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, _ := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)
	charge := testCharge("dep-recon-late")
	charge.ExpiresAt = time.Now().Add(-time.Minute)
	tx, err := ledger.CreateDeposit(ctx, playerID, 4_000, charge)
	require.NoError(t, err)

	deposits := NewDepositService(store, gateway.NewMock(), ledger, DepositBounds{Min: 100, Max: 1_000_000})
	n, err := deposits.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// A paid notification landing after the sweep must not revive the
	// deposit or credit the wallet.
	require.NoError(t, svc.HandleEvent(ctx, Event{GatewayRef: "dep-recon-late", Status: "PAID"}))

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusExpired, got.Status)

	wallet, err := store.Queries().GetWallet(ctx, playerID)
	require.NoError(t, err)
	require.Equal(t, int64(0), wallet.GameBalance)
}

func TestWebhookIgnoresUnhandledStatus(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	store := repository.NewStore(db)
	svc, ledger, _ := newReconFixture(t, store)
	ctx := context.Background()

	playerID := seedVerifiedPlayer(t, db, 0)
	tx, err := ledger.CreateDeposit(ctx, playerID, 4_000, testCharge("dep-recon-odd"))
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(ctx, Event{GatewayRef: "dep-recon-odd", Status: "UNDER_REVIEW"}))

	got, err := store.Queries().GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TxStatusPending, got.Status)
}
