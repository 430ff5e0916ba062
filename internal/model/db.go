package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// The storefront owns these tables; payments only read them (and clear carts).

type Product struct {
	ID       string          `gorm:"primaryKey;size:64;not null"` // product sku
	Name     string          `gorm:"size:255;not null"`
	Price    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency string          `gorm:"size:8;not null"`
	Active   bool            `gorm:"not null"`
}

type Cart struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    string     `gorm:"size:64;uniqueIndex;not null"`
	Items     []CartItem `gorm:"foreignKey:CartID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CartItem struct {
	ID        uint   `gorm:"primaryKey"`
	CartID    uint   `gorm:"index;not null"`
	ProductID string `gorm:"size:64;not null"`
	Quantity  int32  `gorm:"not null"`
}

type ShippingMethod struct {
	ID       string          `gorm:"primaryKey;size:64;not null"`
	Name     string          `gorm:"size:128;not null"`
	Price    decimal.Decimal `gorm:"type:decimal(20,2);not null"`
	Currency string          `gorm:"size:8;not null"`
}
