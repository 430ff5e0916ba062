// Package notify delivers payment notifications off the request path.
package notify

import (
	"context"
	"sync"
	"time"

	"storefront-payments/internal/metrics"
	"storefront-payments/internal/model"

	"go.uber.org/zap"
)

// Notification is published when an order's payment reaches a final state.
type Notification struct {
	OrderID   string                `json:"orderId"`
	UserID    string                `json:"userId"`
	Provider  model.PaymentProvider `json:"provider"`
	Status    model.PaymentStatus   `json:"paymentStatus"`
	Total     string                `json:"total"`
	Currency  string                `json:"currency"`
	Timestamp time.Time             `json:"timestamp"`
}

func FromOrder(order *model.Order) Notification {
	return Notification{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Provider:  order.PaymentMethod.Type,
		Status:    order.PaymentStatus,
		Total:     order.TotalAmount.StringFixed(2),
		Currency:  order.Currency,
		Timestamp: time.Now().UTC(),
	}
}

type Notifier interface {
	NotifyPayment(ctx context.Context, n Notification) error
}

// Dispatcher sends notifications in the background. Failures are logged and
// counted, never returned to the caller.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, timeout: timeout, logger: logger}
}

func (d *Dispatcher) Dispatch(n Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.NotifyPayment(ctx, n); err != nil {
			metrics.NotificationFailuresTotal.Inc()
			d.logger.Error("payment notification failed",
				zap.String("order_id", n.OrderID),
				zap.String("status", string(n.Status)),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogNotifier is used when no message queue is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) NotifyPayment(_ context.Context, n Notification) error {
	l.logger.Info("payment notification",
		zap.String("order_id", n.OrderID),
		zap.String("user_id", n.UserID),
		zap.String("provider", string(n.Provider)),
		zap.String("status", string(n.Status)),
	)
	return nil
}
