package handler

import (
	"net/http"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type PaypalHandler struct {
	checkoutService service.CheckoutService
	paypalService   service.PaypalService
	processor       WebhookProcessor
}

func NewPaypalHandler(checkoutService service.CheckoutService, paypalService service.PaypalService, processor WebhookProcessor) *PaypalHandler {
	return &PaypalHandler{
		checkoutService: checkoutService,
		paypalService:   paypalService,
		processor:       processor,
	}
}

func (h *PaypalHandler) CreateOrder(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req dto.CreatePaypalOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.checkoutService.Checkout(ctx, userID, service.CheckoutInput{
		ShippingAddress:  req.ShippingAddress.ToModel(),
		ShippingMethodID: req.ShippingMethodID,
		Provider:         model.ProviderPayPal,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.CreatePaypalOrderResponse{
		OrderID:       result.Order.ID,
		PaypalOrderID: result.Handle.ExternalID,
		ApprovalURL:   result.Handle.ApprovalURL,
	})
}

func (h *PaypalHandler) CaptureOrder(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req dto.CapturePaypalOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.paypalService.CaptureOrder(ctx, userID, req.PaypalOrderID, req.PayerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.CapturePaypalOrderResponse{
		OrderID:       result.OrderID,
		CaptureID:     result.CaptureID,
		Status:        result.CaptureStatus,
		PaymentStatus: result.PaymentStatus,
	})
}

// PayPalWebhook acknowledges every authentic event, including types we do
// not act on, so PayPal stops redelivering them.
func (h *PaypalHandler) PayPalWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := readWebhook(c)
	if err != nil {
		return err
	}

	if _, err := h.processor.HandleWebhook(ctx, model.ProviderPayPal, c.Request().Header, body); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.WebhookResponse{Received: true})
}
