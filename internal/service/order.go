package service

import (
	"context"
	"errors"
	"strings"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/model"
	"storefront-payments/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderAssembler turns a user's cart into an order with fixed prices. It
// works inside the caller's transaction and never touches the cart.
type OrderAssembler interface {
	CreateOrderFromCart(ctx context.Context, tx *gorm.DB, userID string, address model.Address, shippingMethodID string, method model.PaymentProvider) (*model.Order, error)
}

type orderAssemblerImpl struct {
	currency     string
	cartRepo     repository.CartRepository
	productRepo  repository.ProductRepository
	shippingRepo repository.ShippingRepository
	orderRepo    repository.OrderRepository
	validate     *validator.Validate
}

func NewOrderAssembler(
	currency string,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	shippingRepo repository.ShippingRepository,
	orderRepo repository.OrderRepository,
) OrderAssembler {
	return &orderAssemblerImpl{
		currency:     strings.ToUpper(currency),
		cartRepo:     cartRepo,
		productRepo:  productRepo,
		shippingRepo: shippingRepo,
		orderRepo:    orderRepo,
		validate:     validator.New(),
	}
}

func (a *orderAssemblerImpl) CreateOrderFromCart(
	ctx context.Context,
	tx *gorm.DB,
	userID string,
	address model.Address,
	shippingMethodID string,
	method model.PaymentProvider,
) (*model.Order, error) {
	address = trimAddress(address)
	if err := a.validate.Struct(address); err != nil {
		return nil, apperror.ErrIncompleteAddress.WithCause(err)
	}
	if method != "" && !method.Valid() {
		return nil, apperror.ErrUnsupportedProvider
	}

	cart, err := a.cartRepo.FindByUser(ctx, tx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrEmptyCart
	}
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, apperror.ErrEmptyCart
	}

	shipping, err := a.shippingRepo.FindByID(ctx, tx, shippingMethodID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrInvalidShippingMethod
	}
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			return nil, apperror.ErrValidation.WithMessage("invalid quantity for product %s", item.ProductID)
		}
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := a.productRepo.FindActive(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]*model.Product, len(products))
	for _, p := range products {
		productMap[p.ID] = p
	}

	orderID := uuid.NewString()
	subtotal := decimal.Zero
	items := make([]model.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := productMap[item.ProductID]
		if !ok {
			return nil, apperror.ErrProductNotFound.WithMessage("product %s not found", item.ProductID)
		}
		if !strings.EqualFold(product.Currency, a.currency) {
			return nil, apperror.ErrValidation.WithMessage("product %s is not priced in %s", product.ID, a.currency)
		}

		unitPrice := product.Price.Round(2)
		lineTotal := unitPrice.Mul(decimal.NewFromInt32(item.Quantity)).Round(2)
		subtotal = subtotal.Add(lineTotal)

		items = append(items, model.OrderItem{
			OrderID:     orderID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   unitPrice,
			LineTotal:   lineTotal,
		})
	}

	shippingCost := shipping.Price.Round(2)
	order := &model.Order{
		ID:               orderID,
		UserID:           userID,
		Items:            items,
		Subtotal:         subtotal,
		ShippingCost:     shippingCost,
		TotalAmount:      subtotal.Add(shippingCost).Round(2),
		Currency:         a.currency,
		ShippingAddress:  address,
		ShippingMethodID: shipping.ID,
		PaymentStatus:    model.PaymentPending,
		OrderStatus:      model.OrderPending,
	}
	if method != "" {
		order.PaymentMethod = model.PaymentMethod{Type: method, Name: method.DisplayName()}
	}

	if err := a.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func trimAddress(a model.Address) model.Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return a
}
