package repository

import (
	"context"
	"errors"

	"orderpay/internal/model"

	"gorm.io/gorm"
)

var ErrOrderNotFound = errors.New("订单不存在")

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return orDefault(tx, r.db).WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	var order model.Order
	err := orDefault(tx, r.db).WithContext(ctx).
		Preload("Items").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// GetByIDForUpdate 排他读订单行，支付校验期间状态不会被别人改掉
func (r *OrderRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	var order model.Order
	err := forUpdate(orDefault(tx, r.db)).WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 条件状态迁移：只有当前状态还是 fromStatus 时才生效
// 影响行数为 0 说明状态已经被别的路径改走了
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id, fromStatus, toStatus string) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrInvalidOrderState
	}
	return nil
}

func (r *OrderRepository) ListByOwnerID(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("owner_id = ?", ownerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}
