package repository

import (
	"context"
	"errors"

	"orderpay/internal/model"

	"gorm.io/gorm"
)

var ErrCouponNotFound = errors.New("优惠券不存在")

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Create(ctx context.Context, coupon *model.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *CouponRepository) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := orDefault(tx, r.db).WithContext(ctx).
		Where("code = ?", code).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// GetByCodeForUpdate 排他读券行，发放期间同一张券的读写串行
func (r *CouponRepository) GetByCodeForUpdate(ctx context.Context, tx *gorm.DB, code string) (*model.Coupon, error) {
	var coupon model.Coupon
	err := forUpdate(orDefault(tx, r.db)).WithContext(ctx).
		Where("code = ?", code).
		First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// DecreaseQuantity 预留式扣减余量：remaining_quantity >= 1 才生效
// 发完了影响行数为 0，余量永远不会减成负数
func (r *CouponRepository) DecreaseQuantity(ctx context.Context, tx *gorm.DB, code string) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.Coupon{}).
		Where("code = ? AND remaining_quantity >= 1", code).
		UpdateColumn("remaining_quantity", gorm.Expr("remaining_quantity - 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrCouponExhausted
	}
	return nil
}

func (r *CouponRepository) HasIssued(ctx context.Context, tx *gorm.DB, ownerID int64, code string) (bool, error) {
	var count int64
	err := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.CouponIssuance{}).
		Where("owner_id = ? AND coupon_code = ?", ownerID, code).
		Count(&count).Error
	return count > 0, err
}

// CreateIssuance 落领取记录
// (owner_id, coupon_code) 唯一索引兜底"每人一张"：并发领取时
// 先查后插的竞态由唯一键冲突兜住
func (r *CouponRepository) CreateIssuance(ctx context.Context, tx *gorm.DB, issuance *model.CouponIssuance) error {
	err := orDefault(tx, r.db).WithContext(ctx).Create(issuance).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return model.ErrCouponIssuedDup
	}
	return err
}

func (r *CouponRepository) GetIssuance(ctx context.Context, tx *gorm.DB, ownerID int64, code string) (*model.CouponIssuance, error) {
	var issuance model.CouponIssuance
	err := orDefault(tx, r.db).WithContext(ctx).
		Where("owner_id = ? AND coupon_code = ?", ownerID, code).
		First(&issuance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrCouponNotIssued
		}
		return nil, err
	}
	return &issuance, nil
}

// MarkUsed 把领取记录置为已使用，只有 UNUSED 状态才会生效
func (r *CouponRepository) MarkUsed(ctx context.Context, tx *gorm.DB, ownerID int64, code string) error {
	result := orDefault(tx, r.db).WithContext(ctx).
		Model(&model.CouponIssuance{}).
		Where("owner_id = ? AND coupon_code = ? AND status = ?", ownerID, code, model.IssuanceStatusUnused).
		Update("status", model.IssuanceStatusUsed)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return model.ErrCouponUsed
	}
	return nil
}

// CountIssuancesByCode 某张券的累计发放数（对账/测试用）
func (r *CouponRepository) CountIssuancesByCode(ctx context.Context, code string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.CouponIssuance{}).
		Where("coupon_code = ?", code).
		Count(&count).Error
	return count, err
}
