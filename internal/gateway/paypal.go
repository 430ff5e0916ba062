package gateway

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/cache"
	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/rates"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	headerTransmissionID   = "PAYPAL-TRANSMISSION-ID"
	headerTransmissionTime = "PAYPAL-TRANSMISSION-TIME"
	headerTransmissionSig  = "PAYPAL-TRANSMISSION-SIG"
	headerCertURL          = "PAYPAL-CERT-URL"
	headerAuthAlgo         = "PAYPAL-AUTH-ALGO"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	EventCaptureDeclined  = "PAYMENT.CAPTURE.DECLINED"
	EventOrderVoided      = "CHECKOUT.ORDER.VOIDED"
)

// CertFetcher returns the certificate chain PayPal signed a webhook with,
// leaf first.
type CertFetcher interface {
	Fetch(ctx context.Context, certURL string) ([]*x509.Certificate, error)
}

type PayPalAdapter struct {
	cfg    config.Paypal
	client client.PaypalClient
	certs  CertFetcher
	roots  *x509.CertPool
	now    func() time.Time
}

type PayPalOption func(*PayPalAdapter)

// WithCertRoots replaces the system roots used to verify webhook
// certificates.
func WithCertRoots(roots *x509.CertPool) PayPalOption {
	return func(a *PayPalAdapter) { a.roots = roots }
}

func NewPayPalAdapter(cfg config.Paypal, paypalClient client.PaypalClient, certs CertFetcher, opts ...PayPalOption) *PayPalAdapter {
	a := &PayPalAdapter{
		cfg:    cfg,
		client: paypalClient,
		certs:  certs,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *PayPalAdapter) Provider() model.PaymentProvider { return model.ProviderPayPal }

// RequiredConfirmations is one: a completed capture is final.
func (a *PayPalAdapter) RequiredConfirmations() int { return 1 }

func (a *PayPalAdapter) ExchangeRate(context.Context) (rates.Quote, error) {
	return rates.Quote{}, ErrRateNotApplicable
}

func (a *PayPalAdapter) CreatePayment(ctx context.Context, _ *gorm.DB, order *model.Order) (*PaymentHandle, error) {
	resp, err := a.client.CreateOrder(ctx, client.CreateOrderRequest{
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		ReturnURL: a.cfg.ReturnURL,
		CancelURL: a.cfg.CancelURL,
	})
	if err != nil {
		return nil, apperror.ErrProviderUnavailable.WithCause(fmt.Errorf("create paypal order: %w", err))
	}

	return &PaymentHandle{
		ExternalID:            resp.OrderID,
		ApprovalURL:           resp.ApproveURL,
		ExpiresAt:             a.now().Add(a.cfg.PaymentWindow),
		RequiredConfirmations: a.RequiredConfirmations(),
	}, nil
}

// ParseWebhook maps the PayPal event envelope. Event types we do not act on
// come back as EventIgnored so they can be acknowledged.
func (a *PayPalAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var payload model.PayPalWebhookEvent
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, invalidPayload(err)
	}
	if payload.EventType == "" || payload.Resource == nil {
		return nil, invalidPayload(errors.New("missing event_type or resource"))
	}

	res := payload.Resource
	event := &WebhookEvent{
		Provider:      model.ProviderPayPal,
		Type:          payload.EventType,
		Cumulative:    true,
		Confirmations: 1,
	}

	switch payload.EventType {
	case EventCaptureCompleted:
		if res.ID == "" || res.Amount == nil {
			return nil, invalidPayload(errors.New("capture without id or amount"))
		}
		amount, err := decimal.NewFromString(res.Amount.Value)
		if err != nil {
			return nil, invalidPayload(fmt.Errorf("capture amount: %w", err))
		}
		event.Kind = EventPayment
		event.ExternalID = res.ID
		event.OrderID = res.CustomID
		event.PaymentRef = res.SupplementaryData.RelatedIDs.OrderID
		event.Amount = amount
		event.Currency = res.Amount.Currency
	case EventCaptureDenied, EventCaptureDeclined:
		event.Kind = EventCancelled
		event.ExternalID = res.ID
		event.OrderID = res.CustomID
		event.PaymentRef = res.SupplementaryData.RelatedIDs.OrderID
	case EventOrderVoided:
		event.Kind = EventCancelled
		event.PaymentRef = res.ID
		if len(res.PurchaseUnits) > 0 {
			event.OrderID = res.PurchaseUnits[0].CustomID
		}
	default:
		event.Kind = EventIgnored
	}

	return event, nil
}

// VerifyWebhookSignature checks the transmission signature locally:
// RSA-SHA256 over "id|time|webhook id|crc32(body)" with PayPal's certificate.
func (a *PayPalAdapter) VerifyWebhookSignature(ctx context.Context, headers http.Header, rawBody []byte) (bool, error) {
	transmissionID := headers.Get(headerTransmissionID)
	transmissionTime := headers.Get(headerTransmissionTime)
	certURL := headers.Get(headerCertURL)
	sigHeader := headers.Get(headerTransmissionSig)

	if a.cfg.WebhookID == "" || transmissionID == "" || transmissionTime == "" || certURL == "" || sigHeader == "" {
		return false, nil
	}
	if algo := headers.Get(headerAuthAlgo); algo != "" && algo != "SHA256withRSA" {
		return false, nil
	}
	if !a.trustedCertURL(certURL) {
		return false, nil
	}

	sig, err := base64.StdEncoding.DecodeString(sigHeader)
	if err != nil {
		return false, nil
	}

	chain, err := a.certs.Fetch(ctx, certURL)
	if err != nil {
		return false, apperror.ErrProviderUnavailable.WithCause(fmt.Errorf("fetch paypal cert: %w", err))
	}
	if len(chain) == 0 || !a.trustedCert(chain) {
		return false, nil
	}
	pub, ok := chain[0].PublicKey.(*rsa.PublicKey)
	if !ok {
		return false, nil
	}

	message := fmt.Sprintf("%s|%s|%s|%d", transmissionID, transmissionTime, a.cfg.WebhookID, crc32.ChecksumIEEE(rawBody))
	digest := sha256.Sum256([]byte(message))

	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig) == nil, nil
}

func (a *PayPalAdapter) trustedCertURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), a.cfg.CertHostSuffix)
}

// trustedCert requires the leaf to chain to a trusted root at the current
// time and to be issued for a PayPal host.
func (a *PayPalAdapter) trustedCert(chain []*x509.Certificate) bool {
	leaf := chain[0]
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         a.roots,
		Intermediates: intermediates,
		CurrentTime:   a.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return false
	}

	names := append([]string{leaf.Subject.CommonName}, leaf.DNSNames...)
	for _, name := range names {
		if name != "" && strings.HasSuffix(strings.ToLower(name), a.cfg.CertHostSuffix) {
			return true
		}
	}
	return false
}

func (a *PayPalAdapter) IsAmountSufficient(expected, received decimal.Decimal) bool {
	return amountSufficient(expected, received)
}

func (a *PayPalAdapter) IsExpired(details model.PaymentDetails, now time.Time) bool {
	return windowExpired(details, now)
}

// CaptureEvent turns a capture we performed ourselves into the event the
// processor applies, exactly as if the webhook had arrived.
func CaptureEvent(res *client.CaptureResult) *WebhookEvent {
	event := &WebhookEvent{
		Provider:      model.ProviderPayPal,
		Type:          "CAPTURE." + res.CaptureStatus,
		ExternalID:    res.CaptureID,
		OrderID:       res.CustomID,
		PaymentRef:    res.PaypalOrderID,
		Amount:        res.Amount,
		Currency:      res.Currency,
		Cumulative:    true,
		Confirmations: 1,
	}

	switch res.CaptureStatus {
	case "COMPLETED":
		event.Kind = EventPayment
	case "DECLINED", "FAILED":
		event.Kind = EventCancelled
	default:
		// PENDING captures settle later through the webhook
		event.Kind = EventIgnored
	}
	return event
}

var _ Adapter = (*PayPalAdapter)(nil)

// httpCertFetcher downloads PEM certificate chains and keeps them in a
// bounded TTL store.
type httpCertFetcher struct {
	httpClient *http.Client
	store      cache.Store
	ttl        time.Duration
}

func NewCertFetcher(timeout time.Duration, store cache.Store, ttl time.Duration) CertFetcher {
	return &httpCertFetcher{
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		ttl:        ttl,
	}
}

func (f *httpCertFetcher) Fetch(ctx context.Context, certURL string) ([]*x509.Certificate, error) {
	if raw, ok, err := f.store.Get(ctx, certURL); err == nil && ok {
		return parseCertChain(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download cert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download cert: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read cert: %w", err)
	}

	chain, err := parseCertChain(raw)
	if err != nil {
		return nil, err
	}
	_ = f.store.Set(ctx, certURL, raw, f.ttl)

	return chain, nil
}

func parseCertChain(raw []byte) ([]*x509.Certificate, error) {
	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse cert: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, errors.New("no certificate in PEM data")
	}
	return chain, nil
}
