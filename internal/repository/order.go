package repository

import (
	"context"
	"errors"
	"time"

	"storefront-payments/internal/apperror"
	"storefront-payments/internal/model"

	"gorm.io/gorm"
)

// PaymentUpdate carries everything a payment transition writes to an order.
type PaymentUpdate struct {
	From          model.PaymentStatus
	Version       int // PaymentVersion the writer read
	To            model.PaymentStatus
	OrderStatus   model.OrderStatus
	PaymentMethod model.PaymentMethod
	Details       model.PaymentDetails
	PaidAt        *time.Time
}

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	FindForUser(ctx context.Context, tx *gorm.DB, userID, orderID string) (*model.Order, error)
	FindByPaymentAddress(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, address string) (*model.Order, error)
	FindByExternalID(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, externalID string) (*model.Order, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Order, error)
	UpdatePayment(ctx context.Context, tx *gorm.DB, orderID string, update PaymentUpdate) (bool, error)
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts the order together with its items.
func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	return r.first(r.conn(tx).WithContext(ctx).Where("id = ?", orderID))
}

func (r *orderRepoImpl) FindForUser(ctx context.Context, tx *gorm.DB, userID, orderID string) (*model.Order, error) {
	return r.first(r.conn(tx).WithContext(ctx).Where("id = ? AND user_id = ?", orderID, userID))
}

func (r *orderRepoImpl) FindByPaymentAddress(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, address string) (*model.Order, error) {
	return r.first(r.conn(tx).WithContext(ctx).
		Where("payment_method_type = ? AND payment_address = ?", provider, address))
}

func (r *orderRepoImpl) FindByExternalID(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, externalID string) (*model.Order, error) {
	return r.first(r.conn(tx).WithContext(ctx).
		Where("payment_method_type = ? AND payment_external_id = ?", provider, externalID))
}

func (r *orderRepoImpl) first(q *gorm.DB) (*model.Order, error) {
	var order model.Order
	err := q.Preload("Items").First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrOrderNotFound
		}
		return nil, err
	}

	return &order, nil
}

func (r *orderRepoImpl) ListForUser(ctx context.Context, userID string) ([]*model.Order, error) {
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// UpdatePayment writes the update only if the order is still in update.From
// at update.Version, and bumps the version. It reports false when another
// writer got there first, even if that writer left the status unchanged.
func (r *orderRepoImpl) UpdatePayment(ctx context.Context, tx *gorm.DB, orderID string, update PaymentUpdate) (bool, error) {
	d := update.Details
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_status = ? AND payment_version = ?", orderID, update.From, update.Version).
		Updates(map[string]interface{}{
			"payment_status":                 update.To,
			"payment_version":                gorm.Expr("payment_version + 1"),
			"order_status":                   update.OrderStatus,
			"payment_method_type":            update.PaymentMethod.Type,
			"payment_method_name":            update.PaymentMethod.Name,
			"payment_address":                d.Address,
			"payment_external_id":            d.ExternalID,
			"payment_approval_url":           d.ApprovalURL,
			"payment_crypto_amount":          d.CryptoAmount,
			"payment_exchange_rate":          d.ExchangeRate,
			"payment_rate_quoted_at":         d.RateQuotedAt,
			"payment_rate_valid_until":       d.RateValidUntil,
			"payment_expires_at":             d.ExpiresAt,
			"payment_confirmations":          d.Confirmations,
			"payment_required_confirmations": d.RequiredConfirmations,
			"payment_received_amount":        d.ReceivedAmount,
			"payment_last_tx_id":             d.LastTxID,
			"paid_at":                        update.PaidAt,
			"updated_at":                     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}
