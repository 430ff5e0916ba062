package repository

import (
	"context"

	"storefront-payments/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository is the append-only record of applied external payments.
// Uniqueness of (provider, external_id) is enforced by the database index.
type LedgerRepository interface {
	TryApply(ctx context.Context, tx *gorm.DB, entry *model.PaymentTransaction) (bool, error)
	Exists(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, externalID string) (bool, error)
	SumCredited(ctx context.Context, tx *gorm.DB, orderID string) (decimal.Decimal, error)
	ListForOrder(ctx context.Context, orderID string) ([]*model.PaymentTransaction, error)
}

type ledgerRepoImpl struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepoImpl{
		db: db,
	}
}

// TryApply inserts entry unless one already exists for its external id.
// applied is false when another delivery got there first.
func (r *ledgerRepoImpl) TryApply(ctx context.Context, tx *gorm.DB, entry *model.PaymentTransaction) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *ledgerRepoImpl) Exists(ctx context.Context, tx *gorm.DB, provider model.PaymentProvider, externalID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.PaymentTransaction{}).
		Where("provider = ? AND external_id = ?", provider, externalID).
		Count(&count).Error

	return count > 0, err
}

// SumCredited totals every entry already applied to the order.
func (r *ledgerRepoImpl) SumCredited(ctx context.Context, tx *gorm.DB, orderID string) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).Model(&model.PaymentTransaction{}).
		Where("order_id = ?", orderID).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}

	return decimal.Sum(decimal.Zero, amounts...), nil
}

func (r *ledgerRepoImpl) ListForOrder(ctx context.Context, orderID string) ([]*model.PaymentTransaction, error) {
	var entries []*model.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("applied_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}

	return entries, nil
}
