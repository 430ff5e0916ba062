// Package payment drives an order's payment status: the legal transition
// graph and the webhook pipeline that feeds it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/metrics"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"

	"gorm.io/gorm"
)

type Event string

const (
	EventInitiate Event = "initiate"
	EventProgress Event = "progress"
	EventUnderpay Event = "underpay"
	EventComplete Event = "complete"
	EventExpire   Event = "expire"
	EventCancel   Event = "cancel"
)

// transitions is the whole legal graph. Final states have no entry.
var transitions = map[model.PaymentStatus]map[Event]model.PaymentStatus{
	model.PaymentPending: {
		EventInitiate: model.PaymentAwaitingConfirmation,
	},
	model.PaymentAwaitingConfirmation: {
		EventProgress: model.PaymentAwaitingConfirmation,
		EventUnderpay: model.PaymentUnderpaid,
		EventComplete: model.PaymentCompleted,
		EventExpire:   model.PaymentExpired,
		EventCancel:   model.PaymentCancelled,
	},
	model.PaymentUnderpaid: {
		EventProgress: model.PaymentUnderpaid,
		EventUnderpay: model.PaymentUnderpaid,
		EventComplete: model.PaymentCompleted,
		EventExpire:   model.PaymentExpired,
		EventCancel:   model.PaymentCancelled,
	},
}

// ErrStaleOrder means another payment write landed between read and write.
// The caller re-reads the order and decides again.
var ErrStaleOrder = errors.New("order payment status changed concurrently")

type IllegalTransitionError struct {
	From  model.PaymentStatus
	Event Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal payment transition: %s on %s", e.Event, e.From)
}

func (e *IllegalTransitionError) Unwrap() error { return apperror.ErrIllegalTransition }

// Transition returns the status reached by applying event in from.
func Transition(from model.PaymentStatus, event Event) (model.PaymentStatus, error) {
	to, ok := transitions[from][event]
	if !ok {
		return from, &IllegalTransitionError{From: from, Event: event}
	}
	return to, nil
}

// Observation is what a provider event tells us about a payment.
type Observation struct {
	Kind          gateway.EventKind
	Expired       bool
	Sufficient    bool
	Confirmations int
	Required      int
}

// Decide picks the event for an observation. An elapsed window wins over
// everything, and only a sufficient, fully confirmed payment completes.
func Decide(o Observation) Event {
	switch {
	case o.Expired || o.Kind == gateway.EventExpired:
		return EventExpire
	case o.Kind == gateway.EventCancelled:
		return EventCancel
	case !o.Sufficient:
		return EventUnderpay
	case o.Confirmations >= o.Required:
		return EventComplete
	default:
		return EventProgress
	}
}

func orderStatusFor(status model.PaymentStatus, current model.OrderStatus) model.OrderStatus {
	switch status {
	case model.PaymentCompleted:
		return model.OrderProcessing
	case model.PaymentExpired, model.PaymentCancelled:
		return model.OrderCancelled
	}
	return current
}

type StateMachine struct {
	orders repository.OrderRepository
	now    func() time.Time
}

func NewStateMachine(orders repository.OrderRepository) *StateMachine {
	return &StateMachine{orders: orders, now: time.Now}
}

// Apply moves order along event and persists details with a conditional
// update. On success order reflects the stored state.
func (m *StateMachine) Apply(ctx context.Context, tx *gorm.DB, order *model.Order, event Event, details model.PaymentDetails) (model.PaymentStatus, error) {
	from := order.PaymentStatus
	to, err := Transition(from, event)
	if err != nil {
		return from, err
	}

	orderStatus := orderStatusFor(to, order.OrderStatus)
	paidAt := order.PaidAt
	if to == model.PaymentCompleted && paidAt == nil {
		now := m.now()
		paidAt = &now
	}

	ok, err := m.orders.UpdatePayment(ctx, tx, order.ID, repository.PaymentUpdate{
		From:          from,
		Version:       order.PaymentVersion,
		To:            to,
		OrderStatus:   orderStatus,
		PaymentMethod: order.PaymentMethod,
		Details:       details,
		PaidAt:        paidAt,
	})
	if err != nil {
		return from, fmt.Errorf("update order payment: %w", err)
	}
	if !ok {
		return from, ErrStaleOrder
	}

	order.PaymentStatus = to
	order.PaymentVersion++
	order.OrderStatus = orderStatus
	order.PaymentDetails = details
	order.PaidAt = paidAt

	if from != to {
		metrics.TransitionsTotal.WithLabelValues(string(order.PaymentMethod.Type), string(from), string(to)).Inc()
	}
	return to, nil
}
