package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-payments/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPaypalTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client-id", user)
		assert.Equal(t, "client-secret", pass)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "token-1", "expires_in": 3600})
	})
	mux.HandleFunc("/v2/checkout/orders", handler)
	mux.HandleFunc("/v2/checkout/orders/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func paypalCfg(url string) *config.Paypal {
	return &config.Paypal{BaseApiURL: url, ClientID: "client-id", ClientSecret: "client-secret", Timeout: 5 * time.Second}
}

func TestPaypalClient_CreateOrder(t *testing.T) {
	srv := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "create-order-1", r.Header.Get("PayPal-Request-Id"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body["intent"])
		unit := body["purchase_units"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "order-1", unit["custom_id"])
		assert.Equal(t, map[string]interface{}{"currency_code": "GBP", "value": "110.00"}, unit["amount"])

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"PP-1","status":"CREATED","links":[{"rel":"self","href":"x"},{"rel":"approve","href":"https://paypal.test/approve"}]}`)
	})

	c := NewPaypalClient(paypalCfg(srv.URL))
	resp, err := c.CreateOrder(context.Background(), CreateOrderRequest{
		OrderID:  "order-1",
		Amount:   decimal.RequireFromString("110"),
		Currency: "GBP",
	})
	require.NoError(t, err)
	assert.Equal(t, "PP-1", resp.OrderID)
	assert.Equal(t, "https://paypal.test/approve", resp.ApproveURL)
}

func TestPaypalClient_CreateOrderProviderError(t *testing.T) {
	srv := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"name":"UNPROCESSABLE_ENTITY"}`)
	})

	c := NewPaypalClient(paypalCfg(srv.URL))
	_, err := c.CreateOrder(context.Background(), CreateOrderRequest{OrderID: "order-1", Amount: decimal.NewFromInt(1), Currency: "GBP"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paypal error 422")
}

func TestPaypalClient_CaptureOrder(t *testing.T) {
	srv := newPaypalTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/checkout/orders/PP-1/capture", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{
			"id": "PP-1",
			"status": "COMPLETED",
			"purchase_units": [{
				"reference_id": "order-1",
				"payments": {"captures": [{
					"id": "CAP-1",
					"status": "COMPLETED",
					"amount": {"currency_code": "GBP", "value": "110.00"},
					"custom_id": "order-1"
				}]}
			}]
		}`)
	})

	c := NewPaypalClient(paypalCfg(srv.URL))
	res, err := c.CaptureOrder(context.Background(), "PP-1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", res.Status)
	assert.Equal(t, "CAP-1", res.CaptureID)
	assert.Equal(t, "order-1", res.CustomID)
	assert.Equal(t, "GBP", res.Currency)
	assert.True(t, decimal.RequireFromString("110").Equal(res.Amount))
}

func TestMoneroClient_CreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "api-key", r.Header.Get("X-API-Key"))

		var req MoneroPaymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "order-1", req.OrderID)
		assert.Equal(t, uint64(880000000000), req.Amount)

		_, _ = io.WriteString(w, `{"id":"xmr-pay-1","address":"84xmraddress","amount":880000000000}`)
	}))
	defer srv.Close()

	c := NewMoneroClient(&config.Monero{GatewayURL: srv.URL, APIKey: "api-key", Timeout: 5 * time.Second})
	payment, err := c.CreatePayment(context.Background(), MoneroPaymentRequest{OrderID: "order-1", Amount: 880000000000})
	require.NoError(t, err)
	assert.Equal(t, "xmr-pay-1", payment.ID)
	assert.Equal(t, "84xmraddress", payment.Address)
}

func TestMoneroClient_GatewayDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewMoneroClient(&config.Monero{GatewayURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.CreatePayment(context.Background(), MoneroPaymentRequest{OrderID: "order-1"})
	assert.Error(t, err)
}

func TestCoingeckoClient_Rate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "gbp", r.URL.Query().Get("vs_currencies"))
		_, _ = io.WriteString(w, `{"bitcoin":{"gbp":40000}}`)
	}))
	defer srv.Close()

	c := NewCoingeckoClient(&config.Rates{BaseURL: srv.URL, Timeout: 5 * time.Second})

	rate, err := c.Rate(context.Background(), "GBP", "BTC")
	require.NoError(t, err)
	assert.Equal(t, "0.000025", rate.String())

	price, err := c.Rate(context.Background(), "BTC", "GBP")
	require.NoError(t, err)
	assert.Equal(t, "40000", price.String())

	_, err = c.Rate(context.Background(), "GBP", "EUR")
	assert.Error(t, err)
}

func TestCoingeckoClient_MissingPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	c := NewCoingeckoClient(&config.Rates{BaseURL: srv.URL, Timeout: 5 * time.Second})
	_, err := c.Rate(context.Background(), "GBP", "XMR")
	assert.Error(t, err)
}
