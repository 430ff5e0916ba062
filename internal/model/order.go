package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentProvider string

const (
	ProviderPayPal  PaymentProvider = "paypal"
	ProviderBitcoin PaymentProvider = "bitcoin"
	ProviderMonero  PaymentProvider = "monero"
)

func (p PaymentProvider) Valid() bool {
	switch p {
	case ProviderPayPal, ProviderBitcoin, ProviderMonero:
		return true
	}
	return false
}

// DisplayName is the payment method name stored on the order.
func (p PaymentProvider) DisplayName() string {
	switch p {
	case ProviderPayPal:
		return "PayPal"
	case ProviderBitcoin:
		return "Bitcoin"
	case ProviderMonero:
		return "Monero"
	}
	return string(p)
}

type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentCompleted            PaymentStatus = "completed"
	PaymentUnderpaid            PaymentStatus = "underpaid"
	PaymentExpired              PaymentStatus = "expired"
	PaymentCancelled            PaymentStatus = "cancelled"
)

// Final reports whether no further payment transition can leave this status.
func (s PaymentStatus) Final() bool {
	return s == PaymentCompleted || s == PaymentExpired || s == PaymentCancelled
}

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCancelled  OrderStatus = "cancelled"
)

type Order struct {
	ID     string `gorm:"primaryKey;size:36;not null"`
	UserID string `gorm:"size:64;index;not null"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`

	// Amounts are fixed when the order is assembled.
	Subtotal     decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	ShippingCost decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	TotalAmount  decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency     string          `gorm:"size:8;not null"`

	ShippingAddress  Address `gorm:"embedded;embeddedPrefix:shipping_"`
	ShippingMethodID string  `gorm:"size:64;not null"`

	PaymentMethod  PaymentMethod  `gorm:"embedded;embeddedPrefix:payment_method_"`
	PaymentDetails PaymentDetails `gorm:"embedded;embeddedPrefix:payment_"`
	PaymentStatus  PaymentStatus  `gorm:"size:32;index;not null"`
	OrderStatus    OrderStatus    `gorm:"size:32;index;not null"`
	// PaymentVersion increases with every payment write, self-loops included.
	PaymentVersion int            `gorm:"not null;default:0"`

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID          uint            `gorm:"primaryKey"`
	OrderID     string          `gorm:"size:36;index;not null"`
	ProductID   string          `gorm:"size:64;index;not null"`
	ProductName string          `gorm:"size:255"`
	Quantity    int32           `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	CreatedAt   time.Time
}

type Address struct {
	Name       string `gorm:"size:128" json:"name" validate:"required"`
	Line1      string `gorm:"size:255" json:"line1" validate:"required"`
	Line2      string `gorm:"size:255" json:"line2,omitempty"`
	City       string `gorm:"size:128" json:"city" validate:"required"`
	State      string `gorm:"size:128" json:"state,omitempty"`
	PostalCode string `gorm:"size:32" json:"postalCode" validate:"required"`
	Country    string `gorm:"size:2" json:"country" validate:"required,len=2"`
}

type PaymentMethod struct {
	Type PaymentProvider `gorm:"size:16"`
	Name string          `gorm:"size:32"`
}

// PaymentDetails is the provider-specific snapshot taken when the payment is
// created. Exchange rate and crypto amount stay pinned for the payment's life.
type PaymentDetails struct {
	Address      string          `gorm:"size:128;index"` // bitcoin / monero receiving address
	ExternalID   string          `gorm:"size:128;index"` // paypal order id, monero payment id
	ApprovalURL  string          `gorm:"size:512"`
	CryptoAmount decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	ExchangeRate decimal.Decimal `gorm:"type:decimal(30,16);not null"`

	RateQuotedAt   *time.Time
	RateValidUntil *time.Time
	ExpiresAt      *time.Time

	Confirmations         int             `gorm:"not null"`
	RequiredConfirmations int             `gorm:"not null"`
	ReceivedAmount        decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	LastTxID              string          `gorm:"size:128"`
}

// ExpectedAmount is what the provider must settle: the crypto amount for
// coin payments, the fiat total otherwise.
func (o *Order) ExpectedAmount() decimal.Decimal {
	if o.PaymentMethod.Type == ProviderPayPal {
		return o.TotalAmount
	}
	return o.PaymentDetails.CryptoAmount
}

// PaymentExpired reports whether the payment window closed before now.
func (o *Order) PaymentExpired(now time.Time) bool {
	return o.PaymentDetails.ExpiresAt != nil && now.After(*o.PaymentDetails.ExpiresAt)
}

type LedgerStatus string

const (
	LedgerPartial   LedgerStatus = "partial"
	LedgerCompleted LedgerStatus = "completed"
)

// PaymentTransaction is an append-only ledger entry proving an external
// payment identifier has been applied to exactly one order.
type PaymentTransaction struct {
	ID         uint            `gorm:"primaryKey"`
	Provider   PaymentProvider `gorm:"size:16;not null;uniqueIndex:idx_ledger_provider_external"`
	ExternalID string          `gorm:"size:128;not null;uniqueIndex:idx_ledger_provider_external"`
	OrderID    string          `gorm:"size:36;index;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(30,12);not null"`
	Currency   string          `gorm:"size:8;not null"`
	Status     LedgerStatus    `gorm:"size:16;not null"`
	AppliedAt  time.Time       `gorm:"not null"`
}

// BitcoinAddress records every derived receiving address so that a
// derivation index is never handed out twice.
type BitcoinAddress struct {
	ID        uint   `gorm:"primaryKey"` // doubles as the derivation index
	OrderID   string `gorm:"size:36;index;not null"`
	Address   string `gorm:"size:128;index"`
	CreatedAt time.Time
}
