package repository

import (
	"context"

	"storefront-payments/internal/model"

	"gorm.io/gorm"
)

type ShippingRepository interface {
	FindByID(ctx context.Context, tx *gorm.DB, methodID string) (*model.ShippingMethod, error)
}

type shippingRepoImpl struct {
	db *gorm.DB
}

func NewShippingRepository(db *gorm.DB) ShippingRepository {
	return &shippingRepoImpl{
		db: db,
	}
}

func (r *shippingRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, methodID string) (*model.ShippingMethod, error) {
	var method model.ShippingMethod
	err := tx.WithContext(ctx).
		Where("id = ?", methodID).
		First(&method).Error
	if err != nil {
		return nil, err
	}

	return &method, nil
}
