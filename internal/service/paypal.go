package service

import (
	"context"
	"fmt"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/client"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/model"
	"storefront-payments/internal/payment"
	"storefront-payments/internal/repository"

	"go.uber.org/zap"
)

type CaptureResult struct {
	OrderID       string
	CaptureID     string
	CaptureStatus string
	PaymentStatus model.PaymentStatus
}

type PaypalService interface {
	CaptureOrder(ctx context.Context, userID, paypalOrderID, payerID string) (*CaptureResult, error)
}

// EventApplier is satisfied by *payment.Processor.
type EventApplier interface {
	Apply(ctx context.Context, event *gateway.WebhookEvent) (*payment.ProcessingResult, error)
}

type paypalServiceImpl struct {
	paypalClient client.PaypalClient
	orderRepo    repository.OrderRepository
	applier      EventApplier
	logger       *zap.Logger
}

func NewPaypalService(
	paypalClient client.PaypalClient,
	orderRepo repository.OrderRepository,
	applier EventApplier,
	logger *zap.Logger,
) PaypalService {
	return &paypalServiceImpl{
		paypalClient: paypalClient,
		orderRepo:    orderRepo,
		applier:      applier,
		logger:       logger,
	}
}

// CaptureOrder captures an approved PayPal order and feeds the result through
// the same pipeline as the capture webhook, so whichever arrives second is a
// ledger duplicate.
func (s *paypalServiceImpl) CaptureOrder(ctx context.Context, userID, paypalOrderID, payerID string) (*CaptureResult, error) {
	order, err := s.orderRepo.FindByExternalID(ctx, nil, model.ProviderPayPal, paypalOrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperror.ErrOrderNotFound
	}
	if order.PaymentStatus == model.PaymentCompleted {
		return &CaptureResult{OrderID: order.ID, PaymentStatus: order.PaymentStatus}, nil
	}
	if order.PaymentStatus.Final() {
		return nil, apperror.ErrPaymentState
	}

	resp, err := s.paypalClient.CaptureOrder(ctx, paypalOrderID)
	if err != nil {
		return nil, apperror.ErrProviderUnavailable.WithCause(fmt.Errorf("paypal api capture order: %w", err))
	}

	s.logger.Info("paypal order captured",
		zap.String("order_id", order.ID),
		zap.String("capture_id", resp.CaptureID),
		zap.String("capture_status", resp.CaptureStatus),
		zap.String("payer_id", payerID),
	)

	event := gateway.CaptureEvent(resp)
	if event.OrderID == "" {
		event.OrderID = order.ID
	}

	result, err := s.applier.Apply(ctx, event)
	if err != nil {
		return nil, err
	}

	status := result.PaymentStatus
	if status == "" {
		status = order.PaymentStatus
	}
	return &CaptureResult{
		OrderID:       order.ID,
		CaptureID:     resp.CaptureID,
		CaptureStatus: resp.CaptureStatus,
		PaymentStatus: status,
	}, nil
}
