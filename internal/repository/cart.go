package repository

import (
	"context"
	"time"

	"storefront-payments/internal/model"

	"gorm.io/gorm"
)

type CartRepository interface {
	FindByUser(ctx context.Context, tx *gorm.DB, userID string) (*model.Cart, error)
	ClearIfUnchangedSince(ctx context.Context, tx *gorm.DB, userID string, since time.Time) (bool, error)
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{
		db: db,
	}
}

func (r *cartRepoImpl) FindByUser(ctx context.Context, tx *gorm.DB, userID string) (*model.Cart, error) {
	var cart model.Cart
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}

	return &cart, nil
}

// ClearIfUnchangedSince empties the user's cart only when it has not been
// modified after since, so items added after checkout are kept.
func (r *cartRepoImpl) ClearIfUnchangedSince(ctx context.Context, tx *gorm.DB, userID string, since time.Time) (bool, error) {
	cleared := false
	err := tx.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Cart{}).
			Where("user_id = ? AND updated_at <= ?", userID, since).
			Update("updated_at", time.Now())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		var cart model.Cart
		if err := tx.Where("user_id = ?", userID).First(&cart).Error; err != nil {
			return err
		}
		if err := tx.Where("cart_id = ?", cart.ID).Delete(&model.CartItem{}).Error; err != nil {
			return err
		}

		cleared = true
		return nil
	})

	return cleared, err
}
