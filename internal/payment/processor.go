package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/metrics"
	"storefront-payments/internal/model"
	"storefront-payments/internal/notify"
	"storefront-payments/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Outcome string

const (
	OutcomeAwaiting  Outcome = "awaiting_confirmation"
	OutcomeUnderpaid Outcome = "underpaid"
	OutcomeCompleted Outcome = "completed"
	OutcomeExpired   Outcome = "expired"
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeDuplicate means the external id was already in the ledger.
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	// OutcomeRejected means the event asked for an illegal transition,
	// typically a late event for an order that is already final.
	OutcomeRejected Outcome = "rejected"
)

type ProcessingResult struct {
	Provider      model.PaymentProvider `json:"provider"`
	OrderID       string                `json:"orderId,omitempty"`
	Outcome       Outcome               `json:"outcome"`
	PaymentStatus model.PaymentStatus   `json:"paymentStatus,omitempty"`
}

// Dispatcher is satisfied by *notify.Dispatcher.
type Dispatcher interface {
	Dispatch(n notify.Notification)
}

type ProcessorOption func(*Processor)

// WithMaxRetries bounds how often a stale order is re-read and decided again.
func WithMaxRetries(n uint64) ProcessorOption {
	return func(p *Processor) { p.maxRetries = n }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// Processor is the single pipeline for provider events: authenticate,
// resolve the order, deduplicate against the ledger and drive the state
// machine.
type Processor struct {
	db         *gorm.DB
	adapters   *gateway.Registry
	orders     repository.OrderRepository
	ledger     repository.LedgerRepository
	carts      repository.CartRepository
	machine    *StateMachine
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	maxRetries uint64
}

func NewProcessor(
	db *gorm.DB,
	adapters *gateway.Registry,
	orders repository.OrderRepository,
	ledger repository.LedgerRepository,
	carts repository.CartRepository,
	machine *StateMachine,
	dispatcher Dispatcher,
	logger *zap.Logger,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		db:         db,
		adapters:   adapters,
		orders:     orders,
		ledger:     ledger,
		carts:      carts,
		machine:    machine,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleWebhook processes one inbound callback. Parse and signature failures
// are returned before any order is looked up. Business outcomes such as
// underpayment or expiry are results, not errors.
func (p *Processor) HandleWebhook(ctx context.Context, provider model.PaymentProvider, headers http.Header, rawBody []byte) (*ProcessingResult, error) {
	adapter, err := p.adapters.Get(provider)
	if err != nil {
		return nil, err
	}

	event, err := adapter.ParseWebhook(rawBody)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(string(provider), "invalid").Inc()
		return nil, err
	}

	ok, err := adapter.VerifyWebhookSignature(ctx, headers, rawBody)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.WebhooksTotal.WithLabelValues(string(provider), "unauthorized").Inc()
		logger.AuditEvent(p.logger, "webhook signature rejected",
			zap.String("provider", string(provider)),
			zap.String("event_type", event.Type),
		)
		return nil, apperror.ErrUnauthorizedWebhook
	}

	result, err := p.apply(ctx, adapter, event)
	if err != nil {
		return nil, err
	}
	metrics.WebhooksTotal.WithLabelValues(string(provider), string(result.Outcome)).Inc()
	return result, nil
}

// Apply runs an event that did not arrive as a webhook, such as a capture
// we performed ourselves, through the same resolution and ledger steps.
func (p *Processor) Apply(ctx context.Context, event *gateway.WebhookEvent) (*ProcessingResult, error) {
	adapter, err := p.adapters.Get(event.Provider)
	if err != nil {
		return nil, err
	}
	return p.apply(ctx, adapter, event)
}

func (p *Processor) apply(ctx context.Context, adapter gateway.Adapter, event *gateway.WebhookEvent) (*ProcessingResult, error) {
	if event.Kind == gateway.EventIgnored {
		p.logger.Info("webhook event ignored",
			zap.String("provider", string(adapter.Provider())),
			zap.String("event_type", event.Type),
		)
		return &ProcessingResult{Provider: adapter.Provider(), Outcome: OutcomeIgnored}, nil
	}

	var (
		result  *ProcessingResult
		changed *model.Order
	)

	op := func() error {
		changed = nil
		err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			order, err := p.resolveOrder(ctx, tx, adapter.Provider(), event)
			if err != nil {
				return err
			}

			from := order.PaymentStatus
			r, err := p.process(ctx, tx, adapter, order, event)
			if err != nil {
				return err
			}
			result = r
			if order.PaymentStatus != from {
				changed = order
			}
			return nil
		})
		if errors.Is(err, ErrStaleOrder) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		p.logger.Debug("order changed concurrently, retrying",
			zap.String("provider", string(adapter.Provider())),
			zap.String("external_id", event.ExternalID),
			zap.Duration("wait", wait),
		)
	})
	if errors.Is(err, ErrStaleOrder) {
		return nil, apperror.ErrInternal.WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	if changed != nil {
		p.afterTransition(ctx, changed)
	}
	return result, nil
}

// resolveOrder finds the order an event belongs to: by receiving address,
// then embedded order id, then the provider's payment reference.
func (p *Processor) resolveOrder(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, event *gateway.WebhookEvent) (*model.Order, error) {
	if event.Address != "" {
		return p.orders.FindByPaymentAddress(ctx, tx, provider, event.Address)
	}

	if event.OrderID != "" {
		order, err := p.orders.FindByID(ctx, tx, event.OrderID)
		if err == nil && order.PaymentMethod.Type == provider {
			return order, nil
		}
		if err != nil && !errors.Is(err, apperror.ErrOrderNotFound) {
			return nil, err
		}
	}

	if event.PaymentRef != "" {
		return p.orders.FindByExternalID(ctx, tx, provider, event.PaymentRef)
	}
	return nil, apperror.ErrOrderNotFound
}

func (p *Processor) process(ctx context.Context, tx *gorm.DB, adapter gateway.Adapter, order *model.Order, event *gateway.WebhookEvent) (*ProcessingResult, error) {
	provider := adapter.Provider()
	log := p.logger.With(
		zap.String("provider", string(provider)),
		zap.String("order_id", order.ID),
		zap.String("external_id", event.ExternalID),
		zap.String("event_type", event.Type),
	)
	result := &ProcessingResult{Provider: provider, OrderID: order.ID, PaymentStatus: order.PaymentStatus}

	if event.Kind == gateway.EventPayment {
		exists, err := p.ledger.Exists(ctx, tx, provider, event.ExternalID)
		if err != nil {
			return nil, err
		}
		if exists {
			return p.duplicate(log, result), nil
		}
	}

	details := order.PaymentDetails
	required := details.RequiredConfirmations
	if required <= 0 {
		required = adapter.RequiredConfirmations()
	}

	obs := Observation{
		Kind:     event.Kind,
		Expired:  adapter.IsExpired(order.PaymentDetails, p.now()),
		Required: required,
	}

	if event.Kind == gateway.EventPayment {
		received := event.Amount
		if !event.Cumulative {
			credited, err := p.ledger.SumCredited(ctx, tx, order.ID)
			if err != nil {
				return nil, err
			}
			received = credited.Add(event.Amount)
		}

		obs.Sufficient = sameCurrency(order, event.Currency) && adapter.IsAmountSufficient(order.ExpectedAmount(), received)
		obs.Confirmations = event.Confirmations

		details.Confirmations = event.Confirmations
		details.ReceivedAmount = received
		details.LastTxID = event.ExternalID
	}

	next := Decide(obs)
	to, err := Transition(order.PaymentStatus, next)
	if err != nil {
		log.Warn("payment event rejected", zap.Error(err))
		result.Outcome = OutcomeRejected
		return result, nil
	}

	if next == EventExpire && event.Kind == gateway.EventPayment {
		logger.AuditEvent(log, "payment received after window closed",
			zap.String("amount", event.Amount.String()),
		)
	}

	if to == order.PaymentStatus && sameProgress(order.PaymentDetails, details) {
		result.Outcome = Outcome(to)
		return result, nil
	}

	if entry := p.ledgerEntry(order, event, next, obs); entry != nil {
		applied, err := p.ledger.TryApply(ctx, tx, entry)
		if err != nil {
			return nil, err
		}
		if !applied {
			return p.duplicate(log, result), nil
		}
	}

	from := order.PaymentStatus
	if _, err := p.machine.Apply(ctx, tx, order, next, details); err != nil {
		return nil, err
	}

	logger.PaymentEvent(log, "payment transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("confirmations", details.Confirmations),
		zap.Int("required_confirmations", required),
		zap.String("received", details.ReceivedAmount.String()),
		zap.String("expected", order.ExpectedAmount().String()),
	)

	result.PaymentStatus = to
	result.Outcome = Outcome(to)
	return result, nil
}

// ledgerEntry decides whether this event is recorded. Completions always
// are. A confirmed transaction that is short on its own is recorded as
// partial when later transactions add to it; cumulative providers report
// running totals, so nothing is recorded until they complete.
func (p *Processor) ledgerEntry(order *model.Order, event *gateway.WebhookEvent, next Event, obs Observation) *model.PaymentTransaction {
	var status model.LedgerStatus
	switch {
	case next == EventComplete:
		status = model.LedgerCompleted
	case next == EventUnderpay && !event.Cumulative && obs.Confirmations >= obs.Required:
		status = model.LedgerPartial
	default:
		return nil
	}

	currency := event.Currency
	if currency == "" {
		currency = settlementCurrency(order)
	}

	return &model.PaymentTransaction{
		Provider:   order.PaymentMethod.Type,
		ExternalID: event.ExternalID,
		OrderID:    order.ID,
		Amount:     event.Amount,
		Currency:   strings.ToUpper(currency),
		Status:     status,
		AppliedAt:  p.now(),
	}
}

func (p *Processor) duplicate(log *zap.Logger, result *ProcessingResult) *ProcessingResult {
	metrics.DuplicatePaymentsTotal.WithLabelValues(string(result.Provider)).Inc()
	logger.AuditEvent(log, "duplicate payment event")
	result.Outcome = OutcomeDuplicate
	return result
}

// afterTransition runs once the transaction has committed. Nothing here may
// undo the payment state.
func (p *Processor) afterTransition(ctx context.Context, order *model.Order) {
	switch order.PaymentStatus {
	case model.PaymentCompleted:
		cleared, err := p.carts.ClearIfUnchangedSince(ctx, p.db, order.UserID, order.CreatedAt)
		if err != nil {
			logger.Error(p.logger, err, "clear cart after payment", zap.String("order_id", order.ID))
		} else if cleared {
			p.logger.Info("cart cleared after payment", zap.String("order_id", order.ID))
		}
	case model.PaymentUnderpaid, model.PaymentExpired, model.PaymentCancelled:
	default:
		return
	}

	if p.dispatcher != nil {
		p.dispatcher.Dispatch(notify.FromOrder(order))
	}
}

func settlementCurrency(order *model.Order) string {
	switch order.PaymentMethod.Type {
	case model.ProviderBitcoin:
		return "BTC"
	case model.ProviderMonero:
		return "XMR"
	}
	return order.Currency
}

func sameCurrency(order *model.Order, currency string) bool {
	return currency == "" || strings.EqualFold(currency, settlementCurrency(order))
}

func sameProgress(a, b model.PaymentDetails) bool {
	return a.Confirmations == b.Confirmations &&
		a.ReceivedAmount.Equal(b.ReceivedAmount) &&
		a.LastTxID == b.LastTxID
}
