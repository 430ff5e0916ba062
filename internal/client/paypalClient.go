package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"storefront-payments/internal/config"
	"storefront-payments/internal/model"

	"github.com/shopspring/decimal"
)

type PaypalClient interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error)
	CaptureOrder(ctx context.Context, paypalOrderID string) (*CaptureResult, error)
}

type paypalClientImpl struct {
	httpClient         *http.Client
	baseApiURL         string
	paypalClientID     string
	paypalClientSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

type CreateOrderRequest struct {
	OrderID   string // our order id, sent as custom_id
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
	CancelURL string
}

type CreateOrderResponse struct {
	OrderID    string
	ApproveURL string
	Status     string
}

type CaptureResult struct {
	PaypalOrderID string
	Status        string // order status, COMPLETED on success
	CaptureID     string
	CaptureStatus string
	Amount        decimal.Decimal
	Currency      string
	CustomID      string
}

func NewPaypalClient(paypalCfg *config.Paypal) PaypalClient {
	return &paypalClientImpl{
		httpClient: &http.Client{
			Timeout: paypalCfg.Timeout,
		},
		baseApiURL:         paypalCfg.BaseApiURL,
		paypalClientID:     paypalCfg.ClientID,
		paypalClientSecret: paypalCfg.ClientSecret,
	}
}

func (c *paypalClientImpl) getAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.paypalClientID + ":" + c.paypalClientSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("paypal token error %d", resp.StatusCode)
	}

	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode paypal token: %w", err)
	}

	c.accessToken = res.AccessToken
	// refresh a minute early
	c.tokenExpiry = time.Now().Add(time.Duration(res.ExpiresIn)*time.Second - time.Minute)

	return c.accessToken, nil
}

func (c *paypalClientImpl) CreateOrder(ctx context.Context, in CreateOrderRequest) (*CreateOrderResponse, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get paypal access token: %w", err)
	}

	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": in.OrderID,
				"custom_id":    in.OrderID,
				"amount": map[string]string{
					"currency_code": in.Currency,
					"value":         in.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": in.ReturnURL,
			"cancel_url": in.CancelURL,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+"/v2/checkout/orders",
		bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	// PayPal deduplicates retried creates carrying the same request id
	req.Header.Set("PayPal-Request-Id", "create-"+in.OrderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal create order request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("paypal error %d: %s", resp.StatusCode, string(b))
	}

	var result model.PaypalResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode paypal response: %w", err)
	}

	approveURL := _extractApproveURL(result.Links)
	if result.ID == "" || approveURL == "" {
		return nil, fmt.Errorf("paypal response missing order id or approve link")
	}

	return &CreateOrderResponse{
		OrderID:    result.ID,
		ApproveURL: approveURL,
		Status:     result.Status,
	}, nil
}

func (c *paypalClientImpl) CaptureOrder(ctx context.Context, paypalOrderID string) (*CaptureResult, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get paypal access token: %w", err)
	}

	url := fmt.Sprintf(
		"%s/v2/checkout/orders/%s/capture",
		c.baseApiURL,
		paypalOrderID,
	)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create capture request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PayPal-Request-Id", "capture-"+paypalOrderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paypal capture request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf(
			"paypal capture failed: status=%d body=%s",
			resp.StatusCode,
			string(body),
		)
	}

	var result model.PaypalResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode paypal capture: %w", err)
	}

	return captureResultFrom(&result)
}

func captureResultFrom(result *model.PaypalResult) (*CaptureResult, error) {
	out := &CaptureResult{
		PaypalOrderID: result.ID,
		Status:        result.Status,
	}

	for _, unit := range result.PurchaseUnits {
		if len(unit.Payments.Captures) == 0 {
			continue
		}
		capture := unit.Payments.Captures[0]
		amount, err := decimal.NewFromString(capture.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("parse capture amount %q: %w", capture.Amount.Value, err)
		}

		out.CaptureID = capture.ID
		out.CaptureStatus = capture.Status
		out.Amount = amount
		out.Currency = capture.Amount.Currency
		out.CustomID = capture.CustomID
		if out.CustomID == "" {
			out.CustomID = unit.CustomID
		}
		return out, nil
	}

	return nil, fmt.Errorf("paypal capture response for %s has no captures", result.ID)
}

func _extractApproveURL(links []model.PaypalLink) string {
	for _, link := range links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			return link.Href
		}
	}
	return ""
}
