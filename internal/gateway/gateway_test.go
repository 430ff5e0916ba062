package gateway

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/rates"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/testutil"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuoter struct {
	quote rates.Quote
	err   error
}

func (s *stubQuoter) Quote(_ context.Context, from, to string) (rates.Quote, error) {
	if s.err != nil {
		return rates.Quote{}, s.err
	}
	q := s.quote
	q.From, q.To = from, to
	return q, nil
}

func validQuote(rate string) *stubQuoter {
	now := time.Now()
	return &stubQuoter{quote: rates.Quote{
		Rate:       decimal.RequireFromString(rate),
		Source:     "stub",
		QuotedAt:   now,
		ValidUntil: now.Add(15 * time.Minute),
	}}
}

func testXPub(t *testing.T) string {
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

func bitcoinCfg(t *testing.T) config.Bitcoin {
	return config.Bitcoin{
		Network:               "testnet",
		AccountXPub:           testXPub(t),
		RequiredConfirmations: 2,
		PaymentWindow:         time.Hour,
		WebhookSecret:         "btc-secret",
		SignatureHeader:       "X-Webhook-Signature",
	}
}

func testOrder(id string) *model.Order {
	return &model.Order{ID: id, TotalAmount: decimal.RequireFromString("110.00"), Currency: "GBP"}
}

func TestNewBitcoinAdapter_RejectsBadKeys(t *testing.T) {
	db := testutil.NewDB(t)
	addrs := repository.NewBitcoinAddressRepository(db)

	cfg := bitcoinCfg(t)
	cfg.Network = "mainnet"
	_, err := NewBitcoinAdapter(cfg, "GBP", validQuote("1"), addrs)
	assert.Error(t, err, "testnet key on mainnet")

	cfg = bitcoinCfg(t)
	cfg.AccountXPub = "not-a-key"
	_, err = NewBitcoinAdapter(cfg, "GBP", validQuote("1"), addrs)
	assert.Error(t, err)

	seed := make([]byte, hdkeychain.RecommendedSeedLen)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	cfg = bitcoinCfg(t)
	cfg.AccountXPub = master.String()
	_, err = NewBitcoinAdapter(cfg, "GBP", validQuote("1"), addrs)
	assert.ErrorContains(t, err, "extended public key")
}

func TestBitcoinAdapter_CreatePayment(t *testing.T) {
	db := testutil.NewDB(t)
	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", validQuote("0.000025"), repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)

	first, err := adapter.CreatePayment(context.Background(), db, testOrder("order-1"))
	require.NoError(t, err)

	assert.Equal(t, "0.00275", first.CryptoAmount.String())
	assert.True(t, strings.HasPrefix(first.Address, "tb1q"), first.Address)
	assert.True(t, strings.HasPrefix(first.QRCode, "data:image/png;base64,"))
	assert.Equal(t, 2, first.RequiredConfirmations)
	assert.WithinDuration(t, time.Now().Add(time.Hour), first.ExpiresAt, 5*time.Second)

	second, err := adapter.CreatePayment(context.Background(), db, testOrder("order-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Address, second.Address, "every payment gets a fresh address")

	var rows []model.BitcoinAddress
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, first.Address, rows[0].Address)
	assert.Equal(t, "order-2", rows[1].OrderID)

	details := first.Details()
	assert.Equal(t, "0.000025", details.ExchangeRate.String())
	require.NotNil(t, details.RateValidUntil)
	require.NotNil(t, details.ExpiresAt)
}

func TestBitcoinAdapter_DeriveAddressIsDeterministic(t *testing.T) {
	db := testutil.NewDB(t)
	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", validQuote("1"), repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)

	a1, err := adapter.DeriveAddress(7)
	require.NoError(t, err)
	a2, err := adapter.DeriveAddress(7)
	require.NoError(t, err)
	a3, err := adapter.DeriveAddress(8)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, a3)
}

func TestBitcoinAdapter_RoundsHalfAwayFromZero(t *testing.T) {
	db := testutil.NewDB(t)
	// 10.00 * 0.0000000125 = 0.000000125, half way at the 8th place
	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", validQuote("0.0000000125"), repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)

	order := testOrder("order-1")
	order.TotalAmount = decimal.RequireFromString("10.00")
	h, err := adapter.CreatePayment(context.Background(), db, order)
	require.NoError(t, err)
	assert.Equal(t, "0.00000013", h.CryptoAmount.StringFixed(8))
}

func TestBitcoinAdapter_RefusesExpiredQuote(t *testing.T) {
	db := testutil.NewDB(t)
	q := validQuote("0.000025")
	q.quote.ValidUntil = time.Now().Add(-time.Second)

	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", q, repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)

	_, err = adapter.CreatePayment(context.Background(), db, testOrder("order-1"))
	assert.ErrorIs(t, err, apperror.ErrRateExpired)

	var count int64
	db.Model(&model.BitcoinAddress{}).Count(&count)
	assert.Zero(t, count, "no address is allocated for a refused payment")
}

func TestBitcoinAdapter_RateUnavailable(t *testing.T) {
	db := testutil.NewDB(t)
	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", &stubQuoter{err: apperror.ErrRateUnavailable}, repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)

	_, err = adapter.CreatePayment(context.Background(), db, testOrder("order-1"))
	assert.ErrorIs(t, err, apperror.ErrRateUnavailable)

	_, err = adapter.ExchangeRate(context.Background())
	assert.ErrorIs(t, err, apperror.ErrRateUnavailable)
}

func TestBitcoinAdapter_ParseWebhook(t *testing.T) {
	db := testutil.NewDB(t)
	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", validQuote("1"), repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)

	event, err := adapter.ParseWebhook([]byte(`{"addr":"tb1qabc","value":275000,"txid":"tx-1","confirmations":2}`))
	require.NoError(t, err)
	assert.Equal(t, EventPayment, event.Kind)
	assert.Equal(t, "tb1qabc", event.Address)
	assert.Equal(t, "tx-1", event.ExternalID)
	assert.Equal(t, "0.00275", event.Amount.String())
	assert.Equal(t, 2, event.Confirmations)
	assert.False(t, event.Cumulative)

	for name, body := range map[string]string{
		"not json":         `{"addr":`,
		"missing txid":     `{"addr":"tb1qabc","value":1,"confirmations":0}`,
		"missing value":    `{"addr":"tb1qabc","txid":"t","confirmations":0}`,
		"negative value":   `{"addr":"tb1qabc","value":-1,"txid":"t","confirmations":0}`,
		"no confirmations": `{"addr":"tb1qabc","value":1,"txid":"t"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := adapter.ParseWebhook([]byte(body))
			assert.ErrorIs(t, err, apperror.ErrInvalidWebhook)
		})
	}
}

func TestHMACVerification(t *testing.T) {
	db := testutil.NewDB(t)
	adapter, err := NewBitcoinAdapter(bitcoinCfg(t), "GBP", validQuote("1"), repository.NewBitcoinAddressRepository(db))
	require.NoError(t, err)
	body := []byte(`{"addr":"tb1qabc","value":1,"txid":"t","confirmations":0}`)

	signed := http.Header{}
	signed.Set("X-Webhook-Signature", SignHMAC("btc-secret", body))
	ok, err := adapter.VerifyWebhookSignature(context.Background(), signed, body)
	require.NoError(t, err)
	assert.True(t, ok)

	prefixed := http.Header{}
	prefixed.Set("X-Webhook-Signature", "sha256="+SignHMAC("btc-secret", body))
	ok, _ = adapter.VerifyWebhookSignature(context.Background(), prefixed, body)
	assert.True(t, ok)

	ok, _ = adapter.VerifyWebhookSignature(context.Background(), signed, append(body, ' '))
	assert.False(t, ok, "tampered body")

	wrong := http.Header{}
	wrong.Set("X-Webhook-Signature", SignHMAC("other", body))
	ok, _ = adapter.VerifyWebhookSignature(context.Background(), wrong, body)
	assert.False(t, ok)

	ok, _ = adapter.VerifyWebhookSignature(context.Background(), http.Header{}, body)
	assert.False(t, ok, "missing header")

	assert.False(t, verifyHMAC(signed, "X-Webhook-Signature", "", body), "empty secret never verifies")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewPayPalAdapter(config.Paypal{}, nil, nil))

	a, err := r.Get(model.ProviderPayPal)
	require.NoError(t, err)
	assert.Equal(t, model.ProviderPayPal, a.Provider())

	_, err = r.Get(model.ProviderMonero)
	assert.ErrorIs(t, err, apperror.ErrUnsupportedProvider)
}

func TestWindowExpiryAndSufficiency(t *testing.T) {
	now := time.Now()
	assert.False(t, windowExpired(model.PaymentDetails{}, now))
	assert.False(t, windowExpired(model.PaymentDetails{ExpiresAt: testutil.Ptr(now.Add(time.Minute))}, now))
	assert.True(t, windowExpired(model.PaymentDetails{ExpiresAt: testutil.Ptr(now.Add(-time.Minute))}, now))

	expected := decimal.RequireFromString("0.00275")
	assert.True(t, amountSufficient(expected, decimal.RequireFromString("0.00275")))
	assert.True(t, amountSufficient(expected, decimal.RequireFromString("0.003")))
	assert.False(t, amountSufficient(expected, decimal.RequireFromString("0.002")))
}
