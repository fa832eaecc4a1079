package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Wallet holds the three per-player balances, in centavos.
type Wallet struct {
	PlayerID      uuid.UUID `json:"player_id"`
	GameBalance   int64     `json:"game_balance"`
	InvestBalance int64     `json:"invest_balance"`
	YieldBalance  int64     `json:"yield_balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transaction is the immutable-once-terminal money-movement record. The
// gateway_ref uniqueness is the deduplication key for webhook replay.
type Transaction struct {
	ID           uuid.UUID  `json:"id"`
	PlayerID     uuid.UUID  `json:"player_id"`
	Type         string     `json:"type"`
	Amount       int64      `json:"amount"`
	Status       string     `json:"status"`
	FundSource   string     `json:"fund_source,omitempty"`
	GatewayRef   *string    `json:"gateway_ref,omitempty"`
	PixKey       string     `json:"pix_key,omitempty"`
	PixKeyType   string     `json:"pix_key_type,omitempty"`
	QRPayload    string     `json:"qr_payload,omitempty"`
	CopyPaste    string     `json:"copy_paste,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RejectReason *string    `json:"reject_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// KYCRecord is the player identity-verification state, read-only here.
type KYCRecord struct {
	PlayerID    uuid.UUID `json:"player_id"`
	Status      string    `json:"status"`
	DocumentRef string    `json:"document_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Player carries the slice of account state the approval policy consumes.
type Player struct {
	ID        uuid.UUID `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings is the single-row mutable wallet configuration.
type Settings struct {
	AutoApprovalLimit  int64     `json:"auto_approval_limit"`
	RequireVerifiedKYC bool      `json:"require_verified_kyc"`
	UpdatedAt          time.Time `json:"updated_at"`
}

var (
	// ErrInsufficientBalance signals the selected fund source cannot cover
	// the requested amount. No transaction is created.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAmountOutOfRange signals an amount outside the configured bounds.
	ErrAmountOutOfRange = errors.New("amount out of range")
	// ErrAlreadyTerminal signals the requested transition already happened;
	// callers treat this as success-adjacent, never as a retryable failure.
	ErrAlreadyTerminal = errors.New("transaction already terminal")
	// ErrDuplicateGatewayRef signals the gateway reference is already being
	// processed by another transaction.
	ErrDuplicateGatewayRef = errors.New("duplicate gateway reference")
	// ErrTransactionNotFound signals an unknown transaction id or ref.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrWalletNotFound signals the player has no wallet row.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrMissingPixKey signals a withdrawal without a usable PIX key.
	ErrMissingPixKey = errors.New("pix key is required")
	// ErrInvalidTransition signals a state change the lifecycle forbids, such
	// as approving a withdrawal that is already in flight.
	ErrInvalidTransition = errors.New("invalid state transition")
)
