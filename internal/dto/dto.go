package dto

import (
	"time"

	"storefront-payments/internal/model"
)

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// ToModel copies the address as given; completeness is checked when the order
// is assembled.
func (a Address) ToModel() model.Address {
	return model.Address{
		Name:       a.Name,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

type CreateOrderRequest struct {
	ShippingAddress  Address `json:"shippingAddress"`
	ShippingMethodID string  `json:"shippingMethodId" validate:"required"`
}

type OrderItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

type OrderResponse struct {
	OrderID       string              `json:"orderId"`
	Items         []OrderItem         `json:"items"`
	Subtotal      string              `json:"subtotal"`
	ShippingCost  string              `json:"shippingCost"`
	TotalAmount   string              `json:"totalAmount"`
	Currency      string              `json:"currency"`
	PaymentMethod string              `json:"paymentMethod,omitempty"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
	OrderStatus   model.OrderStatus   `json:"orderStatus"`
	PaidAt        *time.Time          `json:"paidAt,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

func NewOrderResponse(order *model.Order) *OrderResponse {
	items := make([]OrderItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			LineTotal:   item.LineTotal.StringFixed(2),
		}
	}

	return &OrderResponse{
		OrderID:       order.ID,
		Items:         items,
		Subtotal:      order.Subtotal.StringFixed(2),
		ShippingCost:  order.ShippingCost.StringFixed(2),
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod.Name,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		PaidAt:        order.PaidAt,
		CreatedAt:     order.CreatedAt,
	}
}

// PayPal

type CreatePaypalOrderRequest struct {
	ShippingAddress  Address `json:"shippingAddress"`
	ShippingMethodID string  `json:"shippingMethodId" validate:"required"`
}

type CreatePaypalOrderResponse struct {
	OrderID       string `json:"orderId"`
	PaypalOrderID string `json:"paypalOrderId"`
	ApprovalURL   string `json:"approvalUrl"`
}

type CapturePaypalOrderRequest struct {
	PaypalOrderID string `json:"paypalOrderId" validate:"required"`
	PayerID       string `json:"payerId"`
}

type CapturePaypalOrderResponse struct {
	OrderID       string              `json:"orderId"`
	CaptureID     string              `json:"captureId,omitempty"`
	Status        string              `json:"status,omitempty"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus"`
}

// Bitcoin

type InitializeBitcoinRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type BitcoinPaymentResponse struct {
	OrderID        string    `json:"orderId"`
	BitcoinAddress string    `json:"bitcoinAddress"`
	BtcAmount      string    `json:"btcAmount"`
	ExchangeRate   string    `json:"exchangeRate"`
	ValidUntil     time.Time `json:"validUntil"`
	ExpiresAt      time.Time `json:"expiresAt"`
	QRCode         string    `json:"qrCode"`
	OrderTotal     string    `json:"orderTotal"`
	Currency       string    `json:"currency"`
}

// Monero

// CreateMoneroPaymentRequest pays an existing order, or checks out the cart
// when OrderID is "new".
type CreateMoneroPaymentRequest struct {
	OrderID          string   `json:"orderId" validate:"required"`
	ShippingAddress  *Address `json:"shippingAddress,omitempty"`
	ShippingMethodID string   `json:"shippingMethodId,omitempty"`
}

const NewOrder = "new"

type MoneroPaymentResponse struct {
	OrderID               string    `json:"orderId"`
	MoneroAddress         string    `json:"moneroAddress"`
	XmrAmount             string    `json:"xmrAmount"`
	ExchangeRate          string    `json:"exchangeRate"`
	ValidUntil            time.Time `json:"validUntil"`
	ExpiresAt             time.Time `json:"expiresAt"`
	RequiredConfirmations int       `json:"requiredConfirmations"`
	PaymentWindowHours    float64   `json:"paymentWindowHours"`
}

// Shared

type PaymentStatusResponse struct {
	OrderID               string              `json:"orderId"`
	PaymentStatus         model.PaymentStatus `json:"paymentStatus"`
	OrderStatus           model.OrderStatus   `json:"orderStatus"`
	Confirmations         int                 `json:"confirmations"`
	RequiredConfirmations int                 `json:"requiredConfirmations"`
	ReceivedAmount        string              `json:"receivedAmount"`
	ExpectedAmount        string              `json:"expectedAmount"`
	ExpiresAt             *time.Time          `json:"expiresAt,omitempty"`
	IsExpired             bool                `json:"isExpired"`
	IsConfirmed           bool                `json:"isConfirmed"`
}

type WebhookResponse struct {
	Received      bool                `json:"received"`
	Outcome       string              `json:"outcome,omitempty"`
	OrderID       string              `json:"orderId,omitempty"`
	PaymentStatus model.PaymentStatus `json:"paymentStatus,omitempty"`
}
