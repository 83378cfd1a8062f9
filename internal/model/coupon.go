package model

import (
	"errors"
	"time"
)

var (
	ErrCouponExpired    = errors.New("优惠券不在有效期内")
	ErrCouponExhausted  = errors.New("优惠券已发完")
	ErrCouponNotIssued  = errors.New("未领取该优惠券")
	ErrCouponUsed       = errors.New("优惠券已使用")
	ErrCouponIssuedDup  = errors.New("优惠券已领取，不能重复领取")
)

const (
	DiscountTypeFixed   = "FIXED"   // 满减：直接减固定金额
	DiscountTypePercent = "PERCENT" // 折扣：按比例减免
)

const (
	IssuanceStatusUnused = "UNUSED"
	IssuanceStatusUsed   = "USED"
)

// Coupon 限量优惠券
// remaining_quantity 只减不增，且永远不会小于 0（由预留式扣减保证）
type Coupon struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Code              string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	DiscountType      string    `gorm:"type:varchar(16);not null" json:"discount_type"`
	DiscountValue     int64     `gorm:"not null" json:"discount_value"` // FIXED: 金额（分）；PERCENT: 百分比（0-100）
	RemainingQuantity int64     `gorm:"not null" json:"remaining_quantity"`
	ValidFrom         time.Time `gorm:"not null" json:"valid_from"`
	ValidUntil        time.Time `gorm:"not null" json:"valid_until"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Coupon) TableName() string {
	return "coupon"
}

// ValidateUsable 检查优惠券是否在有效期内
func (c *Coupon) ValidateUsable(now time.Time) error {
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return ErrCouponExpired
	}
	return nil
}

// Discount 计算优惠金额，不会超过订单总额
func (c *Coupon) Discount(total int64) int64 {
	var discount int64
	switch c.DiscountType {
	case DiscountTypePercent:
		discount = total * c.DiscountValue / 100
	default:
		discount = c.DiscountValue
	}
	if discount > total {
		discount = total
	}
	return discount
}

// CouponIssuance 优惠券领取记录
// (owner_id, coupon_code) 唯一 —— 每人每券最多领一次，并发领取靠唯一索引兜底
type CouponIssuance struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID    int64     `gorm:"not null;uniqueIndex:uk_owner_coupon" json:"owner_id"`
	CouponCode string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_owner_coupon" json:"coupon_code"`
	Status     string    `gorm:"type:varchar(16);not null;default:UNUSED" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CouponIssuance) TableName() string {
	return "coupon_issuance"
}
