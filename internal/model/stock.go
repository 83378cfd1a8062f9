package model

import (
	"errors"
	"time"
)

var ErrInsufficientStock = errors.New("库存不足")

// StockUnit 商品规格库存表
// 每个 (product_id, variant) 一行，quantity 不允许为负
// 只在预留式扣减（行级排他 + 条件更新）的保护下修改
type StockUnit struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_product_variant" json:"product_id"`
	Variant   string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_product_variant" json:"variant"` // 规格，如尺码
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StockUnit) TableName() string {
	return "stock_unit"
}

// ProductPrice 商品单价表
// 商品目录本身是外部系统，这里只落一份下单计价需要的单价快照
type ProductPrice struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_price_product_variant" json:"product_id"`
	Variant   string    `gorm:"type:varchar(32);not null;uniqueIndex:uk_price_product_variant" json:"variant"`
	UnitPrice int64     `gorm:"not null" json:"unit_price"` // 单价（分）
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ProductPrice) TableName() string {
	return "product_price"
}
