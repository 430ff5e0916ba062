package repository

import (
	"context"

	"storefront-payments/internal/model"

	"gorm.io/gorm"
)

// BitcoinAddressRepository hands out derivation indexes. The row id is the
// index, so an index is never reused even if the surrounding payment fails
// after commit.
type BitcoinAddressRepository interface {
	Allocate(ctx context.Context, tx *gorm.DB, orderID string) (*model.BitcoinAddress, error)
	SetAddress(ctx context.Context, tx *gorm.DB, id uint, address string) error
}

type bitcoinAddressRepoImpl struct {
	db *gorm.DB
}

func NewBitcoinAddressRepository(db *gorm.DB) BitcoinAddressRepository {
	return &bitcoinAddressRepoImpl{
		db: db,
	}
}

func (r *bitcoinAddressRepoImpl) Allocate(ctx context.Context, tx *gorm.DB, orderID string) (*model.BitcoinAddress, error) {
	row := &model.BitcoinAddress{OrderID: orderID}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		return nil, err
	}

	return row, nil
}

func (r *bitcoinAddressRepoImpl) SetAddress(ctx context.Context, tx *gorm.DB, id uint, address string) error {
	return tx.WithContext(ctx).Model(&model.BitcoinAddress{}).
		Where("id = ?", id).
		Update("address", address).Error
}
