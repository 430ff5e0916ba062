// Package rates quotes fiat to crypto exchange rates with an explicit
// validity window.
package rates

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/cache"
	"storefront-payments/internal/config"
	"storefront-payments/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Quote prices one unit of From in units of To.
type Quote struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Rate       decimal.Decimal `json:"rate"`
	Source     string          `json:"source"`
	QuotedAt   time.Time       `json:"quotedAt"`
	ValidUntil time.Time       `json:"validUntil"`
}

func (q Quote) Expired(now time.Time) bool {
	return !now.Before(q.ValidUntil)
}

// Source fetches a live rate from an upstream API.
type Source interface {
	Name() string
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

type Provider struct {
	source   Source
	store    cache.Store
	cacheTTL time.Duration
	validity time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewProvider(source Source, store cache.Store, cfg config.Rates, logger *zap.Logger) *Provider {
	return &Provider{
		source:   source,
		store:    store,
		cacheTTL: cfg.CacheTTL,
		validity: cfg.Validity,
		timeout:  cfg.Timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Quote returns a cached quote when one is still valid, otherwise it asks
// the source. A quote past its ValidUntil is never returned.
func (p *Provider) Quote(ctx context.Context, from, to string) (Quote, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	key := "rate:" + from + ":" + to

	if q, ok := p.cached(ctx, key); ok {
		return q, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rate, err := p.source.Rate(fetchCtx, from, to)
	if err == nil && !rate.IsPositive() {
		err = apperror.ErrRateUnavailable.WithMessage("non-positive rate %s for %s/%s", rate, from, to)
	}
	if err != nil {
		metrics.RateFetchFailuresTotal.WithLabelValues(p.source.Name()).Inc()
		p.logger.Error("exchange rate fetch failed",
			zap.String("source", p.source.Name()),
			zap.String("pair", from+"/"+to),
			zap.Error(err),
		)
		return Quote{}, apperror.ErrRateUnavailable.WithCause(err)
	}

	now := p.now()
	q := Quote{
		From:       from,
		To:         to,
		Rate:       rate,
		Source:     p.source.Name(),
		QuotedAt:   now,
		ValidUntil: now.Add(p.validity),
	}

	if raw, err := json.Marshal(q); err == nil {
		if err := p.store.Set(ctx, key, raw, p.cacheTTL); err != nil {
			p.logger.Warn("cache exchange rate", zap.String("pair", from+"/"+to), zap.Error(err))
		}
	}

	return q, nil
}

func (p *Provider) cached(ctx context.Context, key string) (Quote, bool) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("read cached exchange rate", zap.String("key", key), zap.Error(err))
		return Quote{}, false
	}
	if !ok {
		return Quote{}, false
	}

	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		return Quote{}, false
	}
	if q.Expired(p.now()) {
		return Quote{}, false
	}
	return q, true
}
