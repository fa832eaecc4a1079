package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/platbet/wallet-core/internal/domain"
	"github.com/platbet/wallet-core/internal/models"
)

const txColumns = `id, player_id, type, amount, status, fund_source, gateway_ref,
	pix_key, pix_key_type, qr_payload, copy_paste, expires_at, reject_reason,
	created_at, completed_at, approved_at, rejected_at, paid_at, updated_at`

func scanTransaction(row pgx.Row) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.PlayerID, &t.Type, &t.Amount, &t.Status, &t.FundSource,
		&t.GatewayRef, &t.PixKey, &t.PixKeyType, &t.QRPayload, &t.CopyPaste,
		&t.ExpiresAt, &t.RejectReason, &t.CreatedAt, &t.CompletedAt,
		&t.ApprovedAt, &t.RejectedAt, &t.PaidAt, &t.UpdatedAt,
	)
	return t, err
}

// balanceColumn maps a fund source to its wallet column. The whitelist keeps
// the column name out of caller control.
func balanceColumn(source string) (string, error) {
	switch source {
	case domain.FundSourceGame:
		return "game_balance", nil
	case domain.FundSourceInvest:
		return "invest_balance", nil
	default:
		return "", fmt.Errorf("unknown fund source: %q", source)
	}
}

// EnsureWallet creates the player's wallet row if it does not exist yet.
func (q *Queries) EnsureWallet(ctx context.Context, playerID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO wallets (player_id, game_balance, invest_balance, yield_balance, created_at, updated_at)
		VALUES ($1, 0, 0, 0, NOW(), NOW())
		ON CONFLICT (player_id) DO NOTHING`, playerID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// GetWallet returns the player's wallet.
func (q *Queries) GetWallet(ctx context.Context, playerID uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := q.db.QueryRow(ctx, `
		SELECT player_id, game_balance, invest_balance, yield_balance, created_at, updated_at
		FROM wallets WHERE player_id = $1`, playerID).
		Scan(&w.PlayerID, &w.GameBalance, &w.InvestBalance, &w.YieldBalance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return w, models.ErrWalletNotFound
		}
		return w, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// CreditBalance unconditionally adds amount to the given source balance.
func (q *Queries) CreditBalance(ctx context.Context, playerID uuid.UUID, source string, amount int64) (int64, error) {
	col, err := balanceColumn(source)
	if err != nil {
		return 0, err
	}
	tag, err := q.db.Exec(ctx, fmt.Sprintf(`
		UPDATE wallets SET %s = %s + $1, updated_at = NOW() WHERE player_id = $2`, col, col),
		amount, playerID)
	if err != nil {
		return 0, fmt.Errorf("credit %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// DebitBalanceIfSufficient subtracts amount from the given source balance only
// when the balance covers it. Zero rows affected means insufficient funds; the
// check and the write are a single statement, so concurrent debits cannot both
// pass the check.
func (q *Queries) DebitBalanceIfSufficient(ctx context.Context, playerID uuid.UUID, source string, amount int64) (int64, error) {
	col, err := balanceColumn(source)
	if err != nil {
		return 0, err
	}
	tag, err := q.db.Exec(ctx, fmt.Sprintf(`
		UPDATE wallets SET %s = %s - $1, updated_at = NOW()
		WHERE player_id = $2 AND %s >= $1`, col, col, col),
		amount, playerID)
	if err != nil {
		return 0, fmt.Errorf("debit %s: %w", source, err)
	}
	return tag.RowsAffected(), nil
}

// CreateTransactionParams carries the insert fields for a new transaction.
type CreateTransactionParams struct {
	ID         uuid.UUID
	PlayerID   uuid.UUID
	Type       string
	Amount     int64
	Status     string
	FundSource string
	GatewayRef *string
	PixKey     string
	PixKeyType string
	QRPayload  string
	CopyPaste  string
	ExpiresAt  *time.Time
}

// CreateTransaction inserts a new transaction row. A unique violation on
// gateway_ref surfaces as models.ErrDuplicateGatewayRef.
func (q *Queries) CreateTransaction(ctx context.Context, p CreateTransactionParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO transactions
			(id, player_id, type, amount, status, fund_source, gateway_ref,
			 pix_key, pix_key_type, qr_payload, copy_paste, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())`,
		p.ID, p.PlayerID, p.Type, p.Amount, p.Status, p.FundSource, p.GatewayRef,
		p.PixKey, p.PixKeyType, p.QRPayload, p.CopyPaste, p.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.ErrDuplicateGatewayRef
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// GetTransaction returns a transaction by id.
func (q *Queries) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, models.ErrTransactionNotFound
		}
		return t, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// GetTransactionByGatewayRef returns a transaction by external reference.
func (q *Queries) GetTransactionByGatewayRef(ctx context.Context, ref string) (models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE gateway_ref = $1`, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, models.ErrTransactionNotFound
		}
		return t, fmt.Errorf("get transaction by gateway ref: %w", err)
	}
	return t, nil
}

// GetTransactionForUpdate locks the row for the duration of the enclosing
// transaction. This is the mutual-exclusion point for every terminal
// transition.
func (q *Queries) GetTransactionForUpdate(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return t, models.ErrTransactionNotFound
		}
		return t, fmt.Errorf("get transaction for update: %w", err)
	}
	return t, nil
}

// UpdateTransactionStatusParams carries a status transition write.
type UpdateTransactionStatusParams struct {
	ID           uuid.UUID
	Status       string
	RejectReason *string
}

// UpdateTransactionStatus writes the new status and stamps the matching
// timestamp column for terminal states.
func (q *Queries) UpdateTransactionStatus(ctx context.Context, p UpdateTransactionStatusParams) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE transactions SET
			status = $2,
			reject_reason = COALESCE($3, reject_reason),
			completed_at = CASE WHEN $2 = 'COMPLETED' THEN NOW() ELSE completed_at END,
			approved_at  = CASE WHEN $2 = 'APPROVED'  THEN NOW() ELSE approved_at END,
			rejected_at  = CASE WHEN $2 IN ('REJECTED', 'FAILED', 'CANCELLED') THEN NOW() ELSE rejected_at END,
			paid_at      = CASE WHEN $2 = 'PAID' THEN NOW() ELSE paid_at END,
			updated_at   = NOW()
		WHERE id = $1`,
		p.ID, p.Status, p.RejectReason)
	if err != nil {
		return 0, fmt.Errorf("update transaction status: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SetGatewayRef attaches the external reference returned by the gateway.
func (q *Queries) SetGatewayRef(ctx context.Context, id uuid.UUID, ref string) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE transactions SET gateway_ref = $2, updated_at = NOW() WHERE id = $1`, id, ref)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, models.ErrDuplicateGatewayRef
		}
		return 0, fmt.Errorf("set gateway ref: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListTransactionsParams filters the admin queue listing.
type ListTransactionsParams struct {
	Type   string
	Status string
	Limit  int32
	Offset int32
}

// ListTransactions returns transactions of a type and status, oldest first so
// the review queue drains in arrival order.
func (q *Queries) ListTransactions(ctx context.Context, p ListTransactionsParams) ([]models.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE type = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT $3 OFFSET $4`,
		p.Type, p.Status, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTransactionsByStatus counts rows of a type in a status.
func (q *Queries) CountTransactionsByStatus(ctx context.Context, txType, status string) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE type = $1 AND status = $2`, txType, status).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// ExpireStaleDeposits moves PENDING deposits past their expiry to the terminal
// EXPIRED state and returns the affected ids. Row locks make this mutually
// exclusive with a racing completion.
func (q *Queries) ExpireStaleDeposits(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		UPDATE transactions SET status = $1, updated_at = NOW()
		WHERE type = $2 AND status = $3 AND expires_at IS NOT NULL AND expires_at < NOW()
		RETURNING id`,
		domain.TxStatusExpired, domain.TxTypeDeposit, domain.TxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("expire stale deposits: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetKYCRecord returns the player's KYC state; absent rows read as PENDING.
func (q *Queries) GetKYCRecord(ctx context.Context, playerID uuid.UUID) (models.KYCRecord, error) {
	var k models.KYCRecord
	err := q.db.QueryRow(ctx, `
		SELECT player_id, status, document_ref, created_at, updated_at
		FROM kyc_records WHERE player_id = $1`, playerID).
		Scan(&k.PlayerID, &k.Status, &k.DocumentRef, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.KYCRecord{PlayerID: playerID, Status: domain.KYCStatusPending}, nil
		}
		return k, fmt.Errorf("get kyc record: %w", err)
	}
	return k, nil
}

// GetPlayer returns the player's account state.
func (q *Queries) GetPlayer(ctx context.Context, playerID uuid.UUID) (models.Player, error) {
	var p models.Player
	err := q.db.QueryRow(ctx,
		`SELECT id, status, created_at FROM players WHERE id = $1`, playerID).
		Scan(&p.ID, &p.Status, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, fmt.Errorf("player %s: %w", playerID, models.ErrWalletNotFound)
		}
		return p, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

// GetSettings reads the single wallet settings row.
func (q *Queries) GetSettings(ctx context.Context) (models.Settings, error) {
	var s models.Settings
	err := q.db.QueryRow(ctx, `
		SELECT auto_approval_limit, require_verified_kyc, updated_at
		FROM wallet_settings WHERE id = 1`).
		Scan(&s.AutoApprovalLimit, &s.RequireVerifiedKYC, &s.UpdatedAt)
	if err != nil {
		return s, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// UpdateAutoApprovalLimit writes the new limit, effective for subsequent
// decisions only.
func (q *Queries) UpdateAutoApprovalLimit(ctx context.Context, limit int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		INSERT INTO wallet_settings (id, auto_approval_limit, require_verified_kyc, updated_at)
		VALUES (1, $1, TRUE, NOW())
		ON CONFLICT (id) DO UPDATE SET auto_approval_limit = EXCLUDED.auto_approval_limit, updated_at = NOW()`, limit)
	if err != nil {
		return 0, fmt.Errorf("update auto approval limit: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertAuditLogParams carries one append-only audit row.
type InsertAuditLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

// InsertAuditLog appends a single immutable audit record.
func (q *Queries) InsertAuditLog(ctx context.Context, p InsertAuditLogParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO transaction_audit (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		p.EntityType, p.EntityID, p.ActorID, p.Action, p.PrevState, p.NextState, p.Metadata)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
