package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-payments/internal/config"
)

// MoneroClient talks to the hosted Monero payment gateway that owns the
// wallet and watches the chain for us.
type MoneroClient interface {
	CreatePayment(ctx context.Context, req MoneroPaymentRequest) (*MoneroPayment, error)
}

type moneroClientImpl struct {
	httpClient *http.Client
	gatewayURL string
	apiKey     string
}

type MoneroPaymentRequest struct {
	OrderID     string    `json:"order_id"`
	Amount      uint64    `json:"amount"` // piconero
	CallbackURL string    `json:"callback_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type MoneroPayment struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	Amount    uint64 `json:"amount"`
	ExpiresAt string `json:"expires_at"`
}

func NewMoneroClient(moneroCfg *config.Monero) MoneroClient {
	return &moneroClientImpl{
		httpClient: &http.Client{
			Timeout: moneroCfg.Timeout,
		},
		gatewayURL: moneroCfg.GatewayURL,
		apiKey:     moneroCfg.APIKey,
	}
}

func (c *moneroClientImpl) CreatePayment(ctx context.Context, in MoneroPaymentRequest) (*MoneroPayment, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+"/v1/payments", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("monero gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("monero gateway error %d: %s", resp.StatusCode, string(b))
	}

	var payment MoneroPayment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("decode monero gateway response: %w", err)
	}
	if payment.ID == "" || payment.Address == "" {
		return nil, fmt.Errorf("monero gateway response missing id or address")
	}

	return &payment, nil
}
