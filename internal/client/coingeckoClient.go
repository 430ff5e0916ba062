package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront-payments/internal/config"

	"github.com/shopspring/decimal"
)

var coingeckoIDs = map[string]string{
	"BTC": "bitcoin",
	"XMR": "monero",
}

// CoingeckoClient reads spot prices from the CoinGecko simple price API.
type CoingeckoClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewCoingeckoClient(ratesCfg *config.Rates) *CoingeckoClient {
	return &CoingeckoClient{
		httpClient: &http.Client{
			Timeout: ratesCfg.Timeout,
		},
		baseURL: ratesCfg.BaseURL,
	}
}

func (c *CoingeckoClient) Name() string { return "coingecko" }

// Rate prices one unit of from in to. Either side may be the coin; fiat to
// coin rates are the inverse of the coin's spot price.
func (c *CoingeckoClient) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)

	if coin, ok := coingeckoIDs[from]; ok {
		return c.price(ctx, coin, to)
	}

	coin, ok := coingeckoIDs[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("unsupported pair %s/%s", from, to)
	}
	price, err := c.price(ctx, coin, from)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(1).DivRound(price, 16), nil
}

func (c *CoingeckoClient) price(ctx context.Context, coin, fiat string) (decimal.Decimal, error) {
	vs := strings.ToLower(fiat)
	q := url.Values{}
	q.Set("ids", coin)
	q.Set("vs_currencies", vs)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("coingecko error %d", resp.StatusCode)
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return decimal.Zero, fmt.Errorf("decode coingecko response: %w", err)
	}

	price, ok := prices[coin][vs]
	if !ok || !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("coingecko has no %s price for %s", vs, coin)
	}
	return price, nil
}
