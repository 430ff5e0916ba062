package repository

import (
	"context"

	"storefront-payments/internal/model"

	"gorm.io/gorm"
)

type ProductRepository interface {
	FindActive(ctx context.Context, tx *gorm.DB, productIDs []string) ([]*model.Product, error)
}

type productRepoImpl struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepoImpl{
		db: db,
	}
}

// FindActive returns the active products among productIDs; missing or
// inactive ids are simply absent from the result.
func (r *productRepoImpl) FindActive(ctx context.Context, tx *gorm.DB, productIDs []string) ([]*model.Product, error) {
	var products []*model.Product
	err := tx.WithContext(ctx).
		Where("id IN ? AND active = ?", productIDs, true).
		Find(&products).
		Error

	if err != nil {
		return nil, err
	}

	return products, nil
}
