package repository

import (
	"context"
	"errors"

	"orderpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound = errors.New("余额账户不存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByOwnerID(ctx context.Context, tx *gorm.DB, ownerID int64) (*model.Balance, error) {
	var balance model.Balance
	err := orDefault(tx, r.db).WithContext(ctx).
		Where("owner_id = ?", ownerID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetOrCreate 首次访问时建一行零余额账户，并发创建靠唯一索引去重
func (r *BalanceRepository) GetOrCreate(ctx context.Context, tx *gorm.DB, ownerID int64) (*model.Balance, error) {
	balance, err := r.GetByOwnerID(ctx, tx, ownerID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.Balance{
		OwnerID: ownerID,
		Amount:  0,
	}

	err = orDefault(tx, r.db).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "owner_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error
	if err != nil {
		return nil, err
	}

	return r.GetByOwnerID(ctx, tx, ownerID)
}

// ChargeCAS 比较并交换式入账
//
// 只有读到的 version 和写时刻的 version 一致才会生效；期间有别的写入者
// 改过这一行时影响行数为 0，返回 ErrOptimisticLock，调用方重读重试
func (r *BalanceRepository) ChargeCAS(ctx context.Context, tx *gorm.DB, ownerID, amount, version int64) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.Balance{}).
		Where("owner_id = ? AND version = ?", ownerID, version).
		Updates(map[string]interface{}{
			"amount":  gorm.Expr("amount + ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// DecreaseCAS 比较并交换式扣款
//
// 条件里同时带 amount >= ? 和 version = ?，影响行数为 0 时要区分是
// 余额不够还是版本过期 —— 两种失败调用方的处理完全不同：
// 余额不足直接报给用户，版本冲突可以重试
func (r *BalanceRepository) DecreaseCAS(ctx context.Context, tx *gorm.DB, ownerID, amount, version int64) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.Balance{}).
		Where("owner_id = ? AND amount >= ? AND version = ?", ownerID, amount, version).
		Updates(map[string]interface{}{
			"amount":  gorm.Expr("amount - ?", amount),
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		balance, err := r.GetByOwnerID(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if balance.Amount < amount {
			return model.ErrInsufficientBalance
		}
		return ErrOptimisticLock
	}

	return nil
}
