package handler

import (
	"net/http"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type MoneroHandler struct {
	checkoutService service.CheckoutService
	processor       WebhookProcessor
	paymentWindow   time.Duration
}

func NewMoneroHandler(checkoutService service.CheckoutService, processor WebhookProcessor, paymentWindow time.Duration) *MoneroHandler {
	return &MoneroHandler{
		checkoutService: checkoutService,
		processor:       processor,
		paymentWindow:   paymentWindow,
	}
}

// Create pays an existing order, or checks out the cart when orderId is "new".
func (h *MoneroHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req dto.CreateMoneroPaymentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var result *service.CheckoutResult
	if req.OrderID == dto.NewOrder {
		if req.ShippingAddress == nil {
			return apperror.ErrIncompleteAddress
		}
		if req.ShippingMethodID == "" {
			return apperror.ErrInvalidShippingMethod
		}
		result, err = h.checkoutService.Checkout(ctx, userID, service.CheckoutInput{
			ShippingAddress:  req.ShippingAddress.ToModel(),
			ShippingMethodID: req.ShippingMethodID,
			Provider:         model.ProviderMonero,
		})
	} else {
		result, err = h.checkoutService.InitializePayment(ctx, userID, req.OrderID, model.ProviderMonero)
	}
	if err != nil {
		return err
	}

	resp := &dto.MoneroPaymentResponse{
		OrderID:               result.Order.ID,
		MoneroAddress:         result.Handle.Address,
		XmrAmount:             result.Handle.CryptoAmount.StringFixed(12),
		ExpiresAt:             result.Handle.ExpiresAt,
		RequiredConfirmations: result.Handle.RequiredConfirmations,
		PaymentWindowHours:    h.paymentWindow.Hours(),
	}
	if q := result.Handle.Quote; q != nil {
		resp.ExchangeRate = q.Rate.String()
		resp.ValidUntil = q.ValidUntil
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *MoneroHandler) Status(c echo.Context) error {
	return paymentStatus(c, h.checkoutService, model.ProviderMonero)
}

func (h *MoneroHandler) Webhook(c echo.Context) error {
	return cryptoWebhook(c, h.processor, model.ProviderMonero)
}
