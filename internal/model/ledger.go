package model

import (
	"time"
)

const (
	LedgerReasonCharge = "CHARGE" // 充值
	LedgerReasonPay    = "PAY"    // 支付（扣款）
)

// ============================================================================
// 余额流水实体（幂等台账）
// ============================================================================
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. request_id 全局唯一 —— 客户端重试时同一个 request_id 只会落一行，
//    这一行的存在就代表对应的余额变动已经发生（或正在发生）
// 3. "检查+插入" 的竞态靠唯一索引兜底：并发下两个相同 request_id 的插入
//    只有一个能成功，另一个拿到唯一键冲突，按"已处理"对待
type BalanceLedgerEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`   // 流水号（全局唯一）
	RequestID string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_id"` // 幂等键，客户端生成
	OwnerID   int64     `gorm:"index;not null" json:"owner_id"`
	Amount    int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	Reason    string    `gorm:"type:varchar(32);not null" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (BalanceLedgerEntry) TableName() string {
	return "balance_ledger"
}
