package handler

import (
	"net/http"

	"storefront-payments/internal/dto"
	"storefront-payments/internal/service"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	checkoutService service.CheckoutService
}

func NewOrderHandler(checkoutService service.CheckoutService) *OrderHandler {
	return &OrderHandler{
		checkoutService: checkoutService,
	}
}

// Create places a pending order from the cart; payment is started separately.
func (h *OrderHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req dto.CreateOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.checkoutService.CreatePendingOrder(ctx, userID, req.ShippingAddress.ToModel(), req.ShippingMethodID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, dto.NewOrderResponse(order))
}

func (h *OrderHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	order, err := h.checkoutService.GetOrder(ctx, userID, c.Param("orderId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, dto.NewOrderResponse(order))
}

func (h *OrderHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	orders, err := h.checkoutService.ListOrders(ctx, userID)
	if err != nil {
		return err
	}

	resp := make([]*dto.OrderResponse, len(orders))
	for i, order := range orders {
		resp[i] = dto.NewOrderResponse(order)
	}
	return c.JSON(http.StatusOK, resp)
}
