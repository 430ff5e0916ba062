package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"storefront-payments/internal/config"
	"storefront-payments/internal/model"
	"storefront-payments/internal/rates"
	"storefront-payments/internal/repository"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"
)

const (
	btcCurrency = "BTC"
	btcPlaces   = 8
)

type BitcoinAdapter struct {
	cfg           config.Bitcoin
	storeCurrency string
	net           *chaincfg.Params
	external      *hdkeychain.ExtendedKey // account/0, the receive chain
	addresses     repository.BitcoinAddressRepository
	quoter        RateQuoter
	now           func() time.Time
}

// NewBitcoinAdapter derives receive addresses from an account-level extended
// public key. Private keys are never loaded.
func NewBitcoinAdapter(cfg config.Bitcoin, storeCurrency string, quoter RateQuoter, addresses repository.BitcoinAddressRepository) (*BitcoinAdapter, error) {
	net, err := networkParams(cfg.Network)
	if err != nil {
		return nil, err
	}

	account, err := hdkeychain.NewKeyFromString(cfg.AccountXPub)
	if err != nil {
		return nil, fmt.Errorf("parse bitcoin account xpub: %w", err)
	}
	if account.IsPrivate() {
		return nil, errors.New("bitcoin account key must be an extended public key")
	}
	if !account.IsForNet(net) {
		return nil, fmt.Errorf("bitcoin account key is not for %s", net.Name)
	}

	external, err := account.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("derive receive chain: %w", err)
	}

	return &BitcoinAdapter{
		cfg:           cfg,
		storeCurrency: storeCurrency,
		net:           net,
		external:      external,
		addresses:     addresses,
		quoter:        quoter,
		now:           time.Now,
	}, nil
}

func networkParams(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("unknown bitcoin network %q", name)
}

func (a *BitcoinAdapter) Provider() model.PaymentProvider { return model.ProviderBitcoin }

func (a *BitcoinAdapter) RequiredConfirmations() int { return a.cfg.RequiredConfirmations }

func (a *BitcoinAdapter) PaymentWindow() time.Duration { return a.cfg.PaymentWindow }

func (a *BitcoinAdapter) ExchangeRate(ctx context.Context) (rates.Quote, error) {
	return a.quoter.Quote(ctx, a.storeCurrency, btcCurrency)
}

func (a *BitcoinAdapter) CreatePayment(ctx context.Context, tx *gorm.DB, order *model.Order) (*PaymentHandle, error) {
	now := a.now()
	q, err := freshQuote(ctx, a.quoter, order.Currency, btcCurrency, now)
	if err != nil {
		return nil, err
	}

	address, err := a.nextAddress(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}

	amount := cryptoAmount(order.TotalAmount, q.Rate, btcPlaces)
	qr, err := paymentQRCode(address, amount, order.ID)
	if err != nil {
		return nil, err
	}

	return &PaymentHandle{
		Address:               address,
		CryptoAmount:          amount,
		Quote:                 &q,
		ExpiresAt:             now.Add(a.cfg.PaymentWindow),
		RequiredConfirmations: a.cfg.RequiredConfirmations,
		QRCode:                qr,
	}, nil
}

// nextAddress allocates a fresh derivation index and records its address.
// Indexes that cannot produce a valid child are skipped.
func (a *BitcoinAdapter) nextAddress(ctx context.Context, tx *gorm.DB, orderID string) (string, error) {
	for attempt := 0; attempt < 3; attempt++ {
		row, err := a.addresses.Allocate(ctx, tx, orderID)
		if err != nil {
			return "", fmt.Errorf("allocate bitcoin address index: %w", err)
		}
		if row.ID >= uint(hdkeychain.HardenedKeyStart) {
			return "", errors.New("bitcoin address index space exhausted")
		}

		address, err := a.DeriveAddress(uint32(row.ID))
		if errors.Is(err, hdkeychain.ErrInvalidChild) {
			continue
		}
		if err != nil {
			return "", err
		}

		if err := a.addresses.SetAddress(ctx, tx, row.ID, address); err != nil {
			return "", fmt.Errorf("record bitcoin address: %w", err)
		}
		return address, nil
	}
	return "", errors.New("no valid bitcoin address after retries")
}

// DeriveAddress returns the P2WPKH address at index on the receive chain.
func (a *BitcoinAdapter) DeriveAddress(index uint32) (string, error) {
	child, err := a.external.Derive(index)
	if err != nil {
		return "", err
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("child public key: %w", err)
	}

	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), a.net)
	if err != nil {
		return "", fmt.Errorf("encode segwit address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// paymentQRCode renders a BIP21 URI as a PNG data URL.
func paymentQRCode(address string, amount decimal.Decimal, orderID string) (string, error) {
	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("label", "Order "+orderID)
	uri := "bitcoin:" + address + "?" + q.Encode()

	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode payment qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

type bitcoinWebhook struct {
	Addr          string `json:"addr" validate:"required"`
	Value         *int64 `json:"value" validate:"required,gte=0"`
	TxID          string `json:"txid" validate:"required"`
	Confirmations *int   `json:"confirmations" validate:"required,gte=0"`
}

func (a *BitcoinAdapter) ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var payload bitcoinWebhook
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, invalidPayload(err)
	}
	if err := validate.Struct(payload); err != nil {
		return nil, invalidPayload(err)
	}

	return &WebhookEvent{
		Provider:      model.ProviderBitcoin,
		Kind:          EventPayment,
		Type:          "transaction",
		ExternalID:    payload.TxID,
		Address:       payload.Addr,
		Amount:        decimal.New(*payload.Value, -btcPlaces),
		Currency:      btcCurrency,
		Confirmations: *payload.Confirmations,
	}, nil
}

func (a *BitcoinAdapter) VerifyWebhookSignature(_ context.Context, headers http.Header, rawBody []byte) (bool, error) {
	return verifyHMAC(headers, a.cfg.SignatureHeader, a.cfg.WebhookSecret, rawBody), nil
}

func (a *BitcoinAdapter) IsAmountSufficient(expected, received decimal.Decimal) bool {
	return amountSufficient(expected, received)
}

func (a *BitcoinAdapter) IsExpired(details model.PaymentDetails, now time.Time) bool {
	return windowExpired(details, now)
}

var _ Adapter = (*BitcoinAdapter)(nil)
