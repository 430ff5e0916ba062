package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/rates"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	xmrCurrency = "XMR"
	xmrPlaces   = 12
)

type MoneroAdapter struct {
	cfg           config.Monero
	storeCurrency string
	callbackURL   string
	client        client.MoneroClient
	quoter        RateQuoter
	now           func() time.Time
}

func NewMoneroAdapter(cfg config.Monero, storeCurrency, baseURL string, quoter RateQuoter, moneroClient client.MoneroClient) *MoneroAdapter {
	return &MoneroAdapter{
		cfg:           cfg,
		storeCurrency: storeCurrency,
		callbackURL:   strings.TrimRight(baseURL, "/") + "/payment/monero/webhook",
		client:        moneroClient,
		quoter:        quoter,
		now:           time.Now,
	}
}

func (a *MoneroAdapter) Provider() model.PaymentProvider { return model.ProviderMonero }

func (a *MoneroAdapter) RequiredConfirmations() int { return a.cfg.RequiredConfirmations }

func (a *MoneroAdapter) PaymentWindow() time.Duration { return a.cfg.PaymentWindow }

func (a *MoneroAdapter) ExchangeRate(ctx context.Context) (rates.Quote, error) {
	return a.quoter.Quote(ctx, a.storeCurrency, xmrCurrency)
}

func (a *MoneroAdapter) CreatePayment(ctx context.Context, _ *gorm.DB, order *model.Order) (*PaymentHandle, error) {
	now := a.now()
	q, err := freshQuote(ctx, a.quoter, order.Currency, xmrCurrency, now)
	if err != nil {
		return nil, err
	}

	amount := cryptoAmount(order.TotalAmount, q.Rate, xmrPlaces)
	expiresAt := now.Add(a.cfg.PaymentWindow)

	payment, err := a.client.CreatePayment(ctx, client.MoneroPaymentRequest{
		OrderID:     order.ID,
		Amount:      amount.Shift(xmrPlaces).BigInt().Uint64(),
		CallbackURL: a.callbackURL,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, apperror.ErrProviderUnavailable.WithCause(fmt.Errorf("create monero payment: %w", err))
	}

	return &PaymentHandle{
		ExternalID:            payment.ID,
		Address:               payment.Address,
		CryptoAmount:          amount,
		Quote:                 &q,
		ExpiresAt:             expiresAt,
		RequiredConfirmations: a.cfg.RequiredConfirmations,
	}, nil
}

var moneroStatusKinds = map[string]EventKind{
	"pending":    EventPayment,
	"confirming": EventPayment,
	"confirmed":  EventPayment,
	"completed":  EventPayment,
	"underpaid":  EventPayment,
	"cancelled":  EventCancelled,
	"expired":    EventExpired,
}

type moneroWebhook struct {
	ID            string  `json:"id" validate:"required"`
	Status        string  `json:"status" validate:"required"`
	Confirmations *int    `json:"confirmations" validate:"required,gte=0"`
	OrderID       string  `json:"order_id"`
	PaidAmount    *uint64 `json:"paid_amount" validate:"required"`
	TotalAmount   uint64  `json:"total_amount"`
}

// ParseWebhook reads a gateway callback. Amounts are piconero and
// paid_amount is the running total for the payment.
func (a *MoneroAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var payload moneroWebhook
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, invalidPayload(err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, invalidPayload(err)
	}

	kind, ok := moneroStatusKinds[strings.ToLower(payload.Status)]
	if !ok {
		return nil, invalidPayload(fmt.Errorf("unknown monero payment status %q", payload.Status))
	}

	return &WebhookEvent{
		Provider:      model.ProviderMonero,
		Kind:          kind,
		Type:          payload.Status,
		ExternalID:    payload.ID,
		OrderID:       payload.OrderID,
		PaymentRef:    payload.ID,
		Amount:        decimal.NewFromUint64(*payload.PaidAmount).Shift(-xmrPlaces),
		Currency:      xmrCurrency,
		Cumulative:    true,
		Confirmations: *payload.Confirmations,
	}, nil
}

func (a *MoneroAdapter) VerifyWebhookSignature(_ context.Context, headers http.Header, rawBody []byte) (bool, error) {
	return verifyHMAC(headers, a.cfg.SignatureHeader, a.cfg.WebhookSecret, rawBody), nil
}

func (a *MoneroAdapter) IsAmountSufficient(expected, received decimal.Decimal) bool {
	return amountSufficient(expected, received)
}

func (a *MoneroAdapter) IsExpired(details model.PaymentDetails, now time.Time) bool {
	return windowExpired(details, now)
}

var _ Adapter = (*MoneroAdapter)(nil)
