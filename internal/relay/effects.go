package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"orderpay/internal/model"
	"orderpay/internal/repository"

	"gorm.io/gorm"
)

// 效果处理器
//
// 每个效果在自己的事务里跑（触发事务早已提交），并且自己保证幂等：
// 重放一次不会产生第二份副作用。

// OrderConfirmEffect 支付成功提交后把订单推进到 CONFIRMED
//
// 先重查当前状态：只有还在 CREATED 的订单才迁移，已经被确认或取消的
// 直接跳过 —— 效果可能被重放，状态机只能向前走
func OrderConfirmEffect(db *gorm.DB, orderID string) Effect {
	return Effect{
		Name: "order.confirm",
		Run: func(ctx context.Context) error {
			orderRepo := repository.NewOrderRepository(db)

			return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				order, err := orderRepo.GetByIDForUpdate(ctx, tx, orderID)
				if err != nil {
					return fmt.Errorf("查询订单失败: %w", err)
				}

				if order.Status != model.OrderStatusCreated {
					log.Printf("[EventRelay] 订单状态已变更，跳过确认: orderID=%s, status=%s", orderID, order.Status)
					return nil
				}

				if err := order.Confirm(); err != nil {
					return err
				}
				if err := orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusCreated, model.OrderStatusConfirmed); err != nil {
					return fmt.Errorf("更新订单状态失败: %w", err)
				}

				log.Printf("[EventRelay] 订单已确认: orderID=%s", orderID)
				return nil
			})
		},
	}
}

// BalanceChargedPayload 充值完成事件的下游通知内容
type BalanceChargedPayload struct {
	RequestID string `json:"request_id"`
	OwnerID   int64  `json:"owner_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
	ChargedAt string `json:"charged_at"`
}

// BalanceChargedEffect 充值提交后落一条外发通知（outbox，后台任务送 Kafka）
//
// 幂等：同一个 topic + request_id 的消息已存在时跳过
func BalanceChargedEffect(db *gorm.DB, topic string, payload BalanceChargedPayload) Effect {
	return Effect{
		Name: "balance.charged",
		Run: func(ctx context.Context) error {
			outboxRepo := repository.NewOutboxRepository(db)

			return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				exists, err := outboxRepo.ExistsByTopicKey(ctx, tx, topic, payload.RequestID)
				if err != nil {
					return err
				}
				if exists {
					log.Printf("[EventRelay] 重复的充值通知，跳过: requestID=%s", payload.RequestID)
					return nil
				}

				payload.ChargedAt = time.Now().Format(time.RFC3339)
				body, err := json.Marshal(payload)
				if err != nil {
					return err
				}

				return outboxRepo.Create(ctx, tx, &model.OutboxMessage{
					MessageKey: payload.RequestID,
					Topic:      topic,
					Payload:    string(body),
					Status:     model.OutboxStatusPending,
				})
			})
		},
	}
}
