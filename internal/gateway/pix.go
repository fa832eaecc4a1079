package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PixClient talks to the PIX provider's REST API. Every call carries a bounded
// timeout; a timeout after a withdrawal debit leaves the transaction in a
// recoverable state for reconciliation, never a silent loss.
type PixClient struct {
	baseURL    string
	apiToken   string
	hmacKey    []byte
	httpClient *http.Client
}

// NewPixClient builds a client for the provider at baseURL.
func NewPixClient(baseURL, apiToken, hmacKey string, timeout time.Duration) *PixClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PixClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		hmacKey:  []byte(hmacKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createChargeRequest struct {
	Amount    int64  `json:"amount"`
	PlayerRef string `json:"external_ref"`
}

type createChargeResponse struct {
	ID        string    `json:"id"`
	QRCode    string    `json:"qr_code"`
	CopyPaste string    `json:"copy_paste"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateCharge opens a PIX charge for a deposit.
func (c *PixClient) CreateCharge(ctx context.Context, amount int64, playerRef string) (Charge, error) {
	var resp createChargeResponse
	err := c.post(ctx, "/v1/charges", createChargeRequest{Amount: amount, PlayerRef: playerRef}, &resp)
	if err != nil {
		return Charge{}, fmt.Errorf("create charge: %w", err)
	}
	return Charge{
		GatewayRef: resp.ID,
		QRPayload:  resp.QRCode,
		CopyPaste:  resp.CopyPaste,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

type chargeStatusResponse struct {
	Status string `json:"status"`
}

// GetCharge reports the provider-side status of a charge.
func (c *PixClient) GetCharge(ctx context.Context, gatewayRef string) (string, error) {
	var resp chargeStatusResponse
	if err := c.get(ctx, "/v1/charges/"+gatewayRef, &resp); err != nil {
		return "", fmt.Errorf("get charge: %w", err)
	}
	return resp.Status, nil
}

type createTransferRequest struct {
	Amount     int64  `json:"amount"`
	PixKey     string `json:"pix_key"`
	PixKeyType string `json:"pix_key_type"`
	PlayerRef  string `json:"external_ref"`
}

type createTransferResponse struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

// CreateTransfer sends a withdrawal payout.
func (c *PixClient) CreateTransfer(ctx context.Context, amount int64, pixKey, pixKeyType, playerRef string) (Transfer, error) {
	var resp createTransferResponse
	req := createTransferRequest{Amount: amount, PixKey: pixKey, PixKeyType: pixKeyType, PlayerRef: playerRef}
	if err := c.post(ctx, "/v1/transfers", req, &resp); err != nil {
		return Transfer{}, fmt.Errorf("create transfer: %w", err)
	}
	return Transfer{GatewayRef: resp.ID, AcceptedImmediately: resp.Accepted}, nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 signature the provider sets on
// webhook deliveries. Constant-time comparison.
func (c *PixClient) VerifyWebhookSignature(payload []byte, signature string) bool {
	if len(c.hmacKey) == 0 {
		return false
	}
	h := hmac.New(sha256.New, c.hmacKey)
	h.Write(payload)
	expected := "sha256=" + hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (c *PixClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	return c.do(req, out)
}

func (c *PixClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	return c.do(req, out)
}

func (c *PixClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
