package repository

import (
	"context"
	"errors"

	"orderpay/internal/model"

	"gorm.io/gorm"
)

// ErrDuplicateRequest 幂等键已存在：同一个 request_id 的变动已经记过账
var ErrDuplicateRequest = errors.New("重复请求，该笔变动已处理")

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetByRequestID 按幂等键查流水，不存在时返回 nil
func (r *LedgerRepository) GetByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (*model.BalanceLedgerEntry, error) {
	var entry model.BalanceLedgerEntry
	err := orDefault(tx, r.db).WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *LedgerRepository) ExistsByRequestID(ctx context.Context, tx *gorm.DB, requestID string) (bool, error) {
	var count int64
	err := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.BalanceLedgerEntry{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	return count > 0, err
}

// Create 追加一行流水
//
// "检查+插入" 的并发竞态在这里收口：request_id 唯一索引保证并发下
// 同一个幂等键只有一个插入成功，冲突方拿到 ErrDuplicateRequest，
// 按"已处理"对待，不算错误
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.BalanceLedgerEntry) error {
	err := orDefault(tx, r.db).WithContext(ctx).Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRequest
	}
	return err
}

func (r *LedgerRepository) ListByOwnerID(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.BalanceLedgerEntry, int64, error) {
	var entries []*model.BalanceLedgerEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&model.BalanceLedgerEntry{}).Where("owner_id = ?", ownerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

func (r *LedgerRepository) CountByOwnerID(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BalanceLedgerEntry{}).
		Where("owner_id = ?", ownerID).
		Count(&count).Error
	return count, err
}
