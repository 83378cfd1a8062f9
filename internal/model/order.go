package model

import (
	"errors"
	"time"
)

var ErrInvalidOrderState = errors.New("订单状态不允许该操作")

// ============================================================================
// 订单状态机
// ============================================================================
//
//	CREATED ──confirm()──> CONFIRMED（终态）
//	   └────cancel()────> CANCELLED（终态）
//
// 状态只能向前走，不存在回退。confirm 由支付成功后的事件分发触发，
// 不在支付事务内直接调用 —— "钱已经扣了" 和 "订单状态已更新" 解耦，
// 后者失败不会把前者回滚。
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusCancelled = "CANCELLED"
)

var ValidStatusTransitions = map[string][]string{
	OrderStatusCreated: {OrderStatusConfirmed, OrderStatusCancelled},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Order 订单表
// 订单项在创建时固定，之后只有 status 会变化
type Order struct {
	ID          string       `gorm:"type:varchar(64);primaryKey" json:"id"`
	OwnerID     int64        `gorm:"index;not null" json:"owner_id"`
	TotalAmount int64        `gorm:"not null" json:"total_amount"` // 优惠后的应付金额（分）
	Status      string       `gorm:"type:varchar(20);index;not null" json:"status"`
	Items       []OrderItem  `gorm:"foreignKey:OrderID" json:"items"`
	CreatedAt   time.Time    `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// Confirm 结算确认，只允许从 CREATED 进入
func (o *Order) Confirm() error {
	if !CanTransitionTo(o.Status, OrderStatusConfirmed) {
		return ErrInvalidOrderState
	}
	o.Status = OrderStatusConfirmed
	return nil
}

// Cancel 取消订单，只允许从 CREATED 进入
func (o *Order) Cancel() error {
	if !CanTransitionTo(o.Status, OrderStatusCancelled) {
		return ErrInvalidOrderState
	}
	o.Status = OrderStatusCancelled
	return nil
}

// ValidatePayable 支付前校验：只有 CREATED 状态的订单可以支付
func (o *Order) ValidatePayable() error {
	if o.Status != OrderStatusCreated {
		return ErrInvalidOrderState
	}
	return nil
}

// OrderItem 订单项，单价在下单时刻快照
type OrderItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   string `gorm:"type:varchar(64);index;not null" json:"order_id"`
	ProductID string `gorm:"type:varchar(64);not null" json:"product_id"`
	Variant   string `gorm:"type:varchar(32);not null" json:"variant"`
	Quantity  int64  `gorm:"not null" json:"quantity"`
	UnitPrice int64  `gorm:"not null" json:"unit_price"`
}

func (OrderItem) TableName() string {
	return "order_item"
}
