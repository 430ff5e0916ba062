package service

import (
	"context"
	"errors"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/model"
	"storefront-payments/internal/payment"
	"storefront-payments/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CheckoutInput struct {
	ShippingAddress  model.Address
	ShippingMethodID string
	Provider         model.PaymentProvider
}

// CheckoutResult is an order together with the payment the provider created
// for it.
type CheckoutResult struct {
	Order  *model.Order
	Handle *gateway.PaymentHandle
}

// PaymentStatus is the read model behind the status endpoints.
type PaymentStatus struct {
	OrderID               string
	Provider              model.PaymentProvider
	PaymentStatus         model.PaymentStatus
	OrderStatus           model.OrderStatus
	Confirmations         int
	RequiredConfirmations int
	ReceivedAmount        string
	ExpectedAmount        string
	ExpiresAt             *time.Time
	IsExpired             bool
	IsConfirmed           bool
}

type CheckoutService interface {
	Checkout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error)
	InitializePayment(ctx context.Context, userID, orderID string, provider model.PaymentProvider) (*CheckoutResult, error)
	CreatePendingOrder(ctx context.Context, userID string, address model.Address, shippingMethodID string) (*model.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]*model.Order, error)
	GetPaymentStatus(ctx context.Context, userID, orderID string, provider model.PaymentProvider) (*PaymentStatus, error)
}

type checkoutServiceImpl struct {
	db        *gorm.DB
	assembler OrderAssembler
	adapters  *gateway.Registry
	machine   *payment.StateMachine
	orderRepo repository.OrderRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewCheckoutService(
	db *gorm.DB,
	assembler OrderAssembler,
	adapters *gateway.Registry,
	machine *payment.StateMachine,
	orderRepo repository.OrderRepository,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		db:        db,
		assembler: assembler,
		adapters:  adapters,
		machine:   machine,
		orderRepo: orderRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// Checkout assembles the order and creates the provider payment in one
// transaction. Nothing is stored if the provider call fails.
func (s *checkoutServiceImpl) Checkout(ctx context.Context, userID string, in CheckoutInput) (*CheckoutResult, error) {
	adapter, err := s.adapters.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	var result *CheckoutResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.assembler.CreateOrderFromCart(ctx, tx, userID, in.ShippingAddress, in.ShippingMethodID, in.Provider)
		if err != nil {
			return err
		}

		handle, err := s.startPayment(ctx, tx, adapter, order)
		if err != nil {
			return err
		}

		result = &CheckoutResult{Order: order, Handle: handle}
		return nil
	})
	if err != nil {
		s.logCheckoutFailure(err, in.Provider, userID)
		return nil, err
	}

	logger.PaymentEvent(s.logger, "payment created",
		zap.String("order_id", result.Order.ID),
		zap.String("provider", string(in.Provider)),
		zap.String("total", result.Order.TotalAmount.StringFixed(2)),
		zap.String("currency", result.Order.Currency),
	)
	return result, nil
}

// InitializePayment starts a payment for an existing pending order. Calling it
// again for an order already waiting on the same provider returns the pinned
// payment instead of creating another one.
func (s *checkoutServiceImpl) InitializePayment(ctx context.Context, userID, orderID string, provider model.PaymentProvider) (*CheckoutResult, error) {
	adapter, err := s.adapters.Get(provider)
	if err != nil {
		return nil, err
	}

	var (
		result  *CheckoutResult
		created bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindForUser(ctx, tx, userID, orderID)
		if err != nil {
			return err
		}

		switch {
		case order.PaymentStatus == model.PaymentAwaitingConfirmation && order.PaymentMethod.Type == provider:
			if order.PaymentExpired(s.now()) {
				return apperror.ErrPaymentExpired
			}
			handle, err := gateway.PinnedHandle(order)
			if err != nil {
				return err
			}
			result = &CheckoutResult{Order: order, Handle: handle}
			return nil
		case order.PaymentStatus != model.PaymentPending:
			return apperror.ErrPaymentState
		}

		order.PaymentMethod = model.PaymentMethod{Type: provider, Name: provider.DisplayName()}
		handle, err := s.startPayment(ctx, tx, adapter, order)
		if err != nil {
			return err
		}

		result = &CheckoutResult{Order: order, Handle: handle}
		created = true
		return nil
	})
	if err != nil {
		s.logCheckoutFailure(err, provider, userID)
		return nil, err
	}

	if created {
		logger.PaymentEvent(s.logger, "payment created",
			zap.String("order_id", orderID),
			zap.String("provider", string(provider)),
		)
	}
	return result, nil
}

func (s *checkoutServiceImpl) startPayment(ctx context.Context, tx *gorm.DB, adapter gateway.Adapter, order *model.Order) (*gateway.PaymentHandle, error) {
	handle, err := adapter.CreatePayment(ctx, tx, order)
	if err != nil {
		return nil, err
	}

	if _, err := s.machine.Apply(ctx, tx, order, payment.EventInitiate, handle.Details()); err != nil {
		if errors.Is(err, payment.ErrStaleOrder) {
			// another initialise won; the provider payment created here is never handed out
			logger.AuditEvent(s.logger, "payment initialise lost race",
				zap.String("order_id", order.ID),
				zap.String("provider", string(order.PaymentMethod.Type)),
				zap.String("address", handle.Address),
			)
			return nil, apperror.ErrPaymentState.WithCause(err)
		}
		return nil, err
	}
	return handle, nil
}

func (s *checkoutServiceImpl) CreatePendingOrder(ctx context.Context, userID string, address model.Address, shippingMethodID string) (*model.Order, error) {
	var order *model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = s.assembler.CreateOrderFromCart(ctx, tx, userID, address, shippingMethodID, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *checkoutServiceImpl) GetOrder(ctx context.Context, userID, orderID string) (*model.Order, error) {
	return s.orderRepo.FindForUser(ctx, nil, userID, orderID)
}

func (s *checkoutServiceImpl) ListOrders(ctx context.Context, userID string) ([]*model.Order, error) {
	return s.orderRepo.ListForUser(ctx, userID)
}

func (s *checkoutServiceImpl) GetPaymentStatus(ctx context.Context, userID, orderID string, provider model.PaymentProvider) (*PaymentStatus, error) {
	order, err := s.orderRepo.FindForUser(ctx, nil, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod.Type != provider {
		return nil, apperror.ErrOrderNotFound
	}

	d := order.PaymentDetails
	expired := order.PaymentStatus == model.PaymentExpired ||
		(!order.PaymentStatus.Final() && order.PaymentExpired(s.now()))

	return &PaymentStatus{
		OrderID:               order.ID,
		Provider:              provider,
		PaymentStatus:         order.PaymentStatus,
		OrderStatus:           order.OrderStatus,
		Confirmations:         d.Confirmations,
		RequiredConfirmations: d.RequiredConfirmations,
		ReceivedAmount:        d.ReceivedAmount.String(),
		ExpectedAmount:        order.ExpectedAmount().String(),
		ExpiresAt:             d.ExpiresAt,
		IsExpired:             expired,
		IsConfirmed:           order.PaymentStatus == model.PaymentCompleted,
	}, nil
}

// logCheckoutFailure keeps provider and internal causes in the log; the
// caller only sees the public message.
func (s *checkoutServiceImpl) logCheckoutFailure(err error, provider model.PaymentProvider, userID string) {
	kind := apperror.KindOf(err)
	if kind.Status < 500 {
		return
	}
	logger.Error(s.logger, err, "checkout failed",
		zap.String("provider", string(provider)),
		zap.String("user_id", userID),
		zap.String("kind", kind.Name),
	)
}
