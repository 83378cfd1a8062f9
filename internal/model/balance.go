package model

import (
	"errors"
	"time"
)

var (
	ErrMinimumCharge       = errors.New("充值金额低于最低限额")
	ErrInsufficientBalance = errors.New("余额不足")
)

// Balance 用户余额表
// 金额单位为最小货币单位（分），只通过乐观锁（version 比较）路径修改
type Balance struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   int64     `gorm:"uniqueIndex;not null" json:"owner_id"`      // 用户ID，业务方传入
	Amount    int64     `gorm:"not null;default:0" json:"amount"`          // 可用余额（分），不允许为负
	Version   int64     `gorm:"not null;default:0" json:"version"`         // 乐观锁版本号，写入时比较并自增
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Balance) TableName() string {
	return "balance"
}
