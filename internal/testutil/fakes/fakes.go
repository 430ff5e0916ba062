// Package fakes provides in-memory stand-ins for the payment providers and
// the rate source.
package fakes

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront-payments/internal/client"
	"storefront-payments/internal/rates"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Quoter returns a fixed rate for any pair.
type Quoter struct {
	Rate     decimal.Decimal
	Validity time.Duration
	Err      error
}

func NewQuoter(rate string) *Quoter {
	return &Quoter{Rate: decimal.RequireFromString(rate), Validity: 15 * time.Minute}
}

func (q *Quoter) Quote(_ context.Context, from, to string) (rates.Quote, error) {
	if q.Err != nil {
		return rates.Quote{}, q.Err
	}
	now := time.Now()
	return rates.Quote{
		From:       from,
		To:         to,
		Rate:       q.Rate,
		Source:     "fake",
		QuotedAt:   now,
		ValidUntil: now.Add(q.Validity),
	}, nil
}

type PaypalClient struct {
	mu           sync.Mutex
	CreateErr    error
	CaptureErr   error
	Capture      *client.CaptureResult
	CreateCalls  int
	CaptureCalls int
	LastCreate   client.CreateOrderRequest
}

func (p *PaypalClient) CreateOrder(_ context.Context, req client.CreateOrderRequest) (*client.CreateOrderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls++
	p.LastCreate = req
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	return &client.CreateOrderResponse{
		OrderID:    "PP-" + req.OrderID,
		ApproveURL: "https://www.sandbox.paypal.com/checkoutnow?token=PP-" + req.OrderID,
		Status:     "CREATED",
	}, nil
}

func (p *PaypalClient) CaptureOrder(_ context.Context, paypalOrderID string) (*client.CaptureResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CaptureCalls++
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	return p.Capture, nil
}

type MoneroClient struct {
	mu       sync.Mutex
	Err      error
	Requests []client.MoneroPaymentRequest
}

func (m *MoneroClient) CreatePayment(_ context.Context, req client.MoneroPaymentRequest) (*client.MoneroPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return &client.MoneroPayment{
		ID:        "xmr-" + req.OrderID,
		Address:   "4AdUndXHHZ6cfufTMvppY6JwXNouMBzSkbLYfpAV5Usx" + req.OrderID[:8],
		Amount:    req.Amount,
		ExpiresAt: req.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// AccountXPub is a deterministic testnet account-level extended public key.
func AccountXPub(t *testing.T) string {
	t.Helper()
	seed := make([]byte, hdkeychain.RecommendedSeedLen)
	for i := range seed {
		seed[i] = byte(i)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	pub, err := master.Neuter()
	require.NoError(t, err)
	return pub.String()
}
