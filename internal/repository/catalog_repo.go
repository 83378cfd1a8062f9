package repository

import (
	"context"
	"errors"

	"orderpay/internal/model"

	"gorm.io/gorm"
)

var ErrPriceNotFound = errors.New("商品价格不存在")

// CatalogRepository 商品目录的只读适配
// 目录系统在外部，这里只查下单计价用的单价快照
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetUnitPrice(ctx context.Context, productID, variant string) (int64, error) {
	var price model.ProductPrice
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant = ?", productID, variant).
		First(&price).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrPriceNotFound
		}
		return 0, err
	}
	return price.UnitPrice, nil
}

func (r *CatalogRepository) CreatePrice(ctx context.Context, price *model.ProductPrice) error {
	return r.db.WithContext(ctx).Create(price).Error
}
