// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"storefront-payments/internal/client"
	"storefront-payments/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	UserID           = "user-1"
	OtherUserID      = "user-2"
	ShippingStandard = "standard"
)

// NewDB returns a migrated sqlite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, client.Migrate(db))
	return db
}

func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func SeedProduct(t *testing.T, db *gorm.DB, id, price string, active bool) *model.Product {
	t.Helper()
	p := &model.Product{ID: id, Name: "Product " + id, Price: Dec(price), Currency: "GBP", Active: active}
	require.NoError(t, db.Create(p).Error)
	return p
}

func SeedShipping(t *testing.T, db *gorm.DB, id, price string) *model.ShippingMethod {
	t.Helper()
	m := &model.ShippingMethod{ID: id, Name: "Shipping " + id, Price: Dec(price), Currency: "GBP"}
	require.NoError(t, db.Create(m).Error)
	return m
}

// SeedCart creates a cart for userID holding quantity of each product id.
func SeedCart(t *testing.T, db *gorm.DB, userID string, items map[string]int32) *model.Cart {
	t.Helper()
	cart := &model.Cart{UserID: userID}
	for productID, qty := range items {
		cart.Items = append(cart.Items, model.CartItem{ProductID: productID, Quantity: qty})
	}
	require.NoError(t, db.Create(cart).Error)
	return cart
}

// SeedStore creates the catalogue used by most checkout tests: a 50.00 and a
// 5.00 product, a 5.00 standard shipping method and a cart for UserID that
// totals 110.00 with shipping.
func SeedStore(t *testing.T, db *gorm.DB) {
	t.Helper()
	SeedProduct(t, db, "sku-1", "50.00", true)
	SeedProduct(t, db, "sku-2", "5.00", true)
	SeedShipping(t, db, ShippingStandard, "5.00")
	SeedCart(t, db, UserID, map[string]int32{"sku-1": 2, "sku-2": 1})
}

func Address() model.Address {
	return model.Address{
		Name:       "Ada Lovelace",
		Line1:      "12 St James's Square",
		City:       "London",
		PostalCode: "SW1Y 4JH",
		Country:    "GB",
	}
}

// AwaitingOrder inserts an order already waiting for payment on provider.
func AwaitingOrder(t *testing.T, db *gorm.DB, id string, provider model.PaymentProvider, details model.PaymentDetails) *model.Order {
	t.Helper()
	order := &model.Order{
		ID:               id,
		UserID:           UserID,
		Subtotal:         Dec("105.00"),
		ShippingCost:     Dec("5.00"),
		TotalAmount:      Dec("110.00"),
		Currency:         "GBP",
		ShippingAddress:  Address(),
		ShippingMethodID: ShippingStandard,
		PaymentMethod:    model.PaymentMethod{Type: provider, Name: provider.DisplayName()},
		PaymentDetails:   details,
		PaymentStatus:    model.PaymentAwaitingConfirmation,
		OrderStatus:      model.OrderPending,
		Items: []model.OrderItem{
			{ProductID: "sku-1", ProductName: "Product sku-1", Quantity: 2, UnitPrice: Dec("50.00"), LineTotal: Dec("100.00")},
			{ProductID: "sku-2", ProductName: "Product sku-2", Quantity: 1, UnitPrice: Dec("5.00"), LineTotal: Dec("5.00")},
		},
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func Ptr[T any](v T) *T { return &v }

func In(d time.Duration) *time.Time {
	return Ptr(time.Now().Add(d))
}
