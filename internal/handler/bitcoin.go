package handler

import (
	"net/http"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/model"
	"storefront-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type BitcoinHandler struct {
	checkoutService service.CheckoutService
	processor       WebhookProcessor
}

func NewBitcoinHandler(checkoutService service.CheckoutService, processor WebhookProcessor) *BitcoinHandler {
	return &BitcoinHandler{
		checkoutService: checkoutService,
		processor:       processor,
	}
}

func (h *BitcoinHandler) Initialize(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req dto.InitializeBitcoinRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	result, err := h.checkoutService.InitializePayment(ctx, userID, req.OrderID, model.ProviderBitcoin)
	if err != nil {
		return err
	}

	resp := &dto.BitcoinPaymentResponse{
		OrderID:        result.Order.ID,
		BitcoinAddress: result.Handle.Address,
		BtcAmount:      result.Handle.CryptoAmount.StringFixed(8),
		ExpiresAt:      result.Handle.ExpiresAt,
		QRCode:         result.Handle.QRCode,
		OrderTotal:     result.Order.TotalAmount.StringFixed(2),
		Currency:       result.Order.Currency,
	}
	if q := result.Handle.Quote; q != nil {
		resp.ExchangeRate = q.Rate.String()
		resp.ValidUntil = q.ValidUntil
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *BitcoinHandler) Status(c echo.Context) error {
	return paymentStatus(c, h.checkoutService, model.ProviderBitcoin)
}

func (h *BitcoinHandler) Webhook(c echo.Context) error {
	return cryptoWebhook(c, h.processor, model.ProviderBitcoin)
}

func paymentStatus(c echo.Context, checkoutService service.CheckoutService, provider model.PaymentProvider) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	status, err := checkoutService.GetPaymentStatus(ctx, userID, c.Param("orderId"), provider)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.PaymentStatusResponse{
		OrderID:               status.OrderID,
		PaymentStatus:         status.PaymentStatus,
		OrderStatus:           status.OrderStatus,
		Confirmations:         status.Confirmations,
		RequiredConfirmations: status.RequiredConfirmations,
		ReceivedAmount:        status.ReceivedAmount,
		ExpectedAmount:        status.ExpectedAmount,
		ExpiresAt:             status.ExpiresAt,
		IsExpired:             status.IsExpired,
		IsConfirmed:           status.IsConfirmed,
	})
}

// cryptoWebhook reports the resulting state back to the gateway. Underpaid,
// expired and rejected events are still 200s.
func cryptoWebhook(c echo.Context, processor WebhookProcessor, provider model.PaymentProvider) error {
	ctx := c.Request().Context()

	body, err := readWebhook(c)
	if err != nil {
		return err
	}

	result, err := processor.HandleWebhook(ctx, provider, c.Request().Header, body)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.WebhookResponse{
		Received:      true,
		Outcome:       string(result.Outcome),
		OrderID:       result.OrderID,
		PaymentStatus: result.PaymentStatus,
	})
}
