package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Mock simulates the PIX provider for tests and local runs. Charges expire
// after ChargeTTL; transfers fail with probability FailureRate.
type Mock struct {
	// FailureRate is the probability of transfer failure (0.0 to 1.0).
	FailureRate float64
	// ChargeTTL controls the expires_at on created charges.
	ChargeTTL time.Duration
	// HMACKey signs/verifies webhook payloads.
	HMACKey []byte
	// TransferAccepted controls the AcceptedImmediately flag on transfers.
	TransferAccepted bool
	// TransferErr, when set, fails every CreateTransfer deterministically.
	TransferErr error

	mu        sync.Mutex
	charges   map[string]string
	transfers int
}

// NewMock creates a mock gateway with default settings.
func NewMock() *Mock {
	return &Mock{
		FailureRate:      0,
		ChargeTTL:        30 * time.Minute,
		HMACKey:          []byte("mock-hmac-key"),
		TransferAccepted: true,
		charges:          make(map[string]string),
	}
}

// CreateCharge returns fake QR materials and tracks the charge as pending.
func (g *Mock) CreateCharge(ctx context.Context, amount int64, playerRef string) (Charge, error) {
	if err := ctx.Err(); err != nil {
		return Charge{}, err
	}
	ref := fmt.Sprintf("MOCK-CHG-%s-%05d", time.Now().Format("20060102150405"), rand.Intn(100000))
	g.mu.Lock()
	g.charges[ref] = ChargeStatusPending
	g.mu.Unlock()
	return Charge{
		GatewayRef: ref,
		QRPayload:  "00020126mockqr" + ref,
		CopyPaste:  "mockcopypaste" + ref,
		ExpiresAt:  time.Now().Add(g.ChargeTTL),
	}, nil
}

// GetCharge reports the tracked status, defaulting to pending for unknown refs.
func (g *Mock) GetCharge(ctx context.Context, gatewayRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if status, ok := g.charges[gatewayRef]; ok {
		return status, nil
	}
	return ChargeStatusPending, nil
}

// SetChargeStatus lets tests drive the external side of a charge.
func (g *Mock) SetChargeStatus(gatewayRef, status string) {
	g.mu.Lock()
	g.charges[gatewayRef] = status
	g.mu.Unlock()
}

// CreateTransfer accepts or fails a payout per TransferErr and FailureRate.
func (g *Mock) CreateTransfer(ctx context.Context, amount int64, pixKey, pixKeyType, playerRef string) (Transfer, error) {
	if err := ctx.Err(); err != nil {
		return Transfer{}, err
	}
	if g.TransferErr != nil {
		return Transfer{}, g.TransferErr
	}
	if rand.Float64() < g.FailureRate {
		return Transfer{}, fmt.Errorf("gateway temporarily unavailable")
	}
	ref := fmt.Sprintf("MOCK-TRF-%s-%05d", time.Now().Format("20060102150405"), rand.Intn(100000))
	g.mu.Lock()
	g.transfers++
	g.mu.Unlock()
	return Transfer{GatewayRef: ref, AcceptedImmediately: g.TransferAccepted}, nil
}

// TransferCount reports how many transfers were created, for tests.
func (g *Mock) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transfers
}

// VerifyWebhookSignature mirrors the real provider's HMAC scheme.
func (g *Mock) VerifyWebhookSignature(payload []byte, signature string) bool {
	h := hmac.New(sha256.New, g.HMACKey)
	h.Write(payload)
	expected := "sha256=" + hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

// Sign produces a webhook signature for the payload, for tests.
func (g *Mock) Sign(payload []byte) string {
	h := hmac.New(sha256.New, g.HMACKey)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}
