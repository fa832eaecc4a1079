package gateway

import (
	"context"
	"time"
)

// Charge is the gateway's answer to a deposit charge creation.
type Charge struct {
	GatewayRef string
	QRPayload  string
	CopyPaste  string
	ExpiresAt  time.Time
}

// Transfer is the gateway's answer to a withdrawal payout creation.
type Transfer struct {
	GatewayRef          string
	AcceptedImmediately bool
}

// External charge statuses the gateway reports.
const (
	ChargeStatusPending   = "pending"
	ChargeStatusPaid      = "paid"
	ChargeStatusExpired   = "expired"
	ChargeStatusCancelled = "cancelled"
)

// Gateway is the outbound interface to the external PIX provider. The
// provider's HTTP and auth details stay behind this boundary.
type Gateway interface {
	// CreateCharge opens a PIX charge for a deposit and returns the QR
	// materials the player pays against.
	CreateCharge(ctx context.Context, amount int64, playerRef string) (Charge, error)

	// GetCharge reports the external status of a charge, used by the
	// client-driven poll path.
	GetCharge(ctx context.Context, gatewayRef string) (string, error)

	// CreateTransfer sends a withdrawal payout to the given PIX key.
	CreateTransfer(ctx context.Context, amount int64, pixKey, pixKeyType, playerRef string) (Transfer, error)

	// VerifyWebhookSignature checks the authenticity token on an inbound
	// webhook payload.
	VerifyWebhookSignature(payload []byte, signature string) bool
}
