package repository

import (
	"context"
	"errors"

	"orderpay/internal/model"

	"gorm.io/gorm"
)

var ErrStockNotFound = errors.New("库存记录不存在")

type StockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Create(ctx context.Context, unit *model.StockUnit) error {
	return r.db.WithContext(ctx).Create(unit).Error
}

func (r *StockRepository) Get(ctx context.Context, productID, variant string) (*model.StockUnit, error) {
	var unit model.StockUnit
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND variant = ?", productID, variant).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// GetForUpdate 排他读库存行，事务结束前阻塞其他预留者
func (r *StockRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, productID, variant string) (*model.StockUnit, error) {
	var unit model.StockUnit
	err := forUpdate(orDefault(tx, r.db)).WithContext(ctx).
		Where("product_id = ? AND variant = ?", productID, variant).
		First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, err
	}
	return &unit, nil
}

// Decrease 预留式扣减：quantity >= 请求量 才会生效，库存不可能扣成负数
func (r *StockRepository) Decrease(ctx context.Context, tx *gorm.DB, productID, variant string, quantity int64) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.StockUnit{}).
		Where("product_id = ? AND variant = ? AND quantity >= ?", productID, variant, quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", quantity))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrInsufficientStock
	}
	return nil
}

// Increase 回补库存（取消 CREATED 订单时）
func (r *StockRepository) Increase(ctx context.Context, tx *gorm.DB, productID, variant string, quantity int64) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.StockUnit{}).
		Where("product_id = ? AND variant = ?", productID, variant).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStockNotFound
	}
	return nil
}
