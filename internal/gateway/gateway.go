// Package gateway adapts the payment providers to one interface so payment
// processing stays provider-agnostic.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/model"
	"storefront-payments/internal/rates"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrRateNotApplicable is returned by providers that charge in fiat.
var ErrRateNotApplicable = errors.New("provider charges in fiat, no exchange rate applies")

type Adapter interface {
	Provider() model.PaymentProvider
	ExchangeRate(ctx context.Context) (rates.Quote, error)
	// CreatePayment runs inside the checkout transaction tx.
	CreatePayment(ctx context.Context, tx *gorm.DB, order *model.Order) (*PaymentHandle, error)
	ParseWebhook(rawBody []byte) (*WebhookEvent, error)
	VerifyWebhookSignature(ctx context.Context, headers http.Header, rawBody []byte) (bool, error)
	IsAmountSufficient(expected, received decimal.Decimal) bool
	IsExpired(details model.PaymentDetails, now time.Time) bool
	RequiredConfirmations() int
}

// RateQuoter is satisfied by *rates.Provider.
type RateQuoter interface {
	Quote(ctx context.Context, from, to string) (rates.Quote, error)
}

// PaymentHandle is what a provider hands back when a payment is created.
type PaymentHandle struct {
	ExternalID            string
	Address               string
	ApprovalURL           string
	CryptoAmount          decimal.Decimal
	Quote                 *rates.Quote
	ExpiresAt             time.Time
	RequiredConfirmations int
	QRCode                string
}

// Details is the snapshot pinned on the order for the payment's lifetime.
func (h *PaymentHandle) Details() model.PaymentDetails {
	expiresAt := h.ExpiresAt
	d := model.PaymentDetails{
		Address:               h.Address,
		ExternalID:            h.ExternalID,
		ApprovalURL:           h.ApprovalURL,
		CryptoAmount:          h.CryptoAmount,
		ExpiresAt:             &expiresAt,
		RequiredConfirmations: h.RequiredConfirmations,
	}
	if h.Quote != nil {
		quotedAt, validUntil := h.Quote.QuotedAt, h.Quote.ValidUntil
		d.ExchangeRate = h.Quote.Rate
		d.RateQuotedAt = &quotedAt
		d.RateValidUntil = &validUntil
	}
	return d
}

type EventKind string

const (
	// EventPayment reports funds seen by the provider.
	EventPayment   EventKind = "payment"
	EventCancelled EventKind = "cancelled"
	EventExpired   EventKind = "expired"
	// EventIgnored is acknowledged without touching any order.
	EventIgnored EventKind = "ignored"
)

// WebhookEvent is a provider callback reduced to what payment processing needs.
type WebhookEvent struct {
	Provider model.PaymentProvider
	Kind     EventKind
	Type     string // provider's own event type or status

	// ExternalID is the ledger key: tx hash, provider payment id or capture id.
	ExternalID string

	// Order resolution, tried in this order.
	Address    string
	OrderID    string
	PaymentRef string

	Amount   decimal.Decimal
	Currency string
	// Cumulative events carry the running total paid; otherwise Amount is a
	// single transaction that adds to earlier credited ones.
	Cumulative    bool
	Confirmations int
}

// Registry resolves adapters by provider.
type Registry struct {
	adapters map[model.PaymentProvider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.PaymentProvider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) Get(provider model.PaymentProvider) (Adapter, error) {
	a, ok := r.adapters[provider]
	if !ok {
		return nil, apperror.ErrUnsupportedProvider
	}
	return a, nil
}

func amountSufficient(expected, received decimal.Decimal) bool {
	return received.GreaterThanOrEqual(expected)
}

func windowExpired(details model.PaymentDetails, now time.Time) bool {
	return details.ExpiresAt != nil && now.After(*details.ExpiresAt)
}

// freshQuote fetches a fiat to coin quote and refuses one that is no longer valid.
func freshQuote(ctx context.Context, quoter RateQuoter, fiat, coin string, now time.Time) (rates.Quote, error) {
	q, err := quoter.Quote(ctx, fiat, coin)
	if err != nil {
		return rates.Quote{}, err
	}
	if q.Expired(now) {
		return rates.Quote{}, apperror.ErrRateExpired
	}
	return q, nil
}

// cryptoAmount converts a fiat total at rate, rounding half away from zero.
func cryptoAmount(total, rate decimal.Decimal, places int32) decimal.Decimal {
	return total.Mul(rate).Round(places)
}

var validate = validator.New()

func invalidPayload(err error) error {
	return apperror.ErrInvalidWebhook.WithCause(err)
}

// PinnedHandle rebuilds the handle of a payment that was already created so
// repeated initialisation returns the same address, amount and rate.
func PinnedHandle(order *model.Order) (*PaymentHandle, error) {
	d := order.PaymentDetails
	h := &PaymentHandle{
		ExternalID:            d.ExternalID,
		Address:               d.Address,
		ApprovalURL:           d.ApprovalURL,
		CryptoAmount:          d.CryptoAmount,
		RequiredConfirmations: d.RequiredConfirmations,
	}
	if d.ExpiresAt != nil {
		h.ExpiresAt = *d.ExpiresAt
	}

	coin := ""
	switch order.PaymentMethod.Type {
	case model.ProviderBitcoin:
		coin = btcCurrency
		qr, err := paymentQRCode(d.Address, d.CryptoAmount, order.ID)
		if err != nil {
			return nil, err
		}
		h.QRCode = qr
	case model.ProviderMonero:
		coin = xmrCurrency
	}

	if coin != "" && d.RateQuotedAt != nil && d.RateValidUntil != nil {
		h.Quote = &rates.Quote{
			From:       order.Currency,
			To:         coin,
			Rate:       d.ExchangeRate,
			QuotedAt:   *d.RateQuotedAt,
			ValidUntil: *d.RateValidUntil,
		}
	}
	return h, nil
}
