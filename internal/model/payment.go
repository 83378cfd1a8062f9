package model

import (
	"time"
)

const PaymentStatusSuccess = "SUCCESS"

// Payment 支付记录表
//
// order_id 唯一索引是"一单一付"的最终防线：并发支付同一订单时，
// 先提交者赢，后来者插入时撞唯一键，直接判定为重复支付
type Payment struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_no"`
	OrderID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_id"`
	OwnerID   int64     `gorm:"index;not null" json:"owner_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Payment) TableName() string {
	return "payment"
}
