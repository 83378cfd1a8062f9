package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"orderpay/internal/config"
	"orderpay/internal/infrastructure/lock"
	"orderpay/internal/model"
	"orderpay/internal/relay"
	"orderpay/internal/repository"
	"orderpay/pkg/idgen"

	"gorm.io/gorm"
)

var ErrOrderOwnerMismatch = errors.New("不能支付别人的订单")

type PaymentService struct {
	db          *gorm.DB
	cfg         *config.Config
	locks       *lock.Coordinator
	relay       *relay.Relay
	orderRepo   *repository.OrderRepository
	balanceRepo *repository.BalanceRepository
	paymentRepo *repository.PaymentRepository
	ledgerRepo  *repository.LedgerRepository
	outboxRepo  *repository.OutboxRepository
}

func NewPaymentService(db *gorm.DB, cfg *config.Config, locks *lock.Coordinator, r *relay.Relay) *PaymentService {
	return &PaymentService{
		db:          db,
		cfg:         cfg,
		locks:       locks,
		relay:       r,
		orderRepo:   repository.NewOrderRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

type PayRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	OwnerID int64  `json:"owner_id" binding:"required"`
}

type PayResponse struct {
	PaymentNo string `json:"payment_no"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// Pay 支付订单
//
// payment:order:<orderID> 锁把同一订单的支付跨实例串行。锁内一个事务完成：
// 校验订单可支付 -> CAS 扣余额 -> 落支付记录（order_id 唯一，一单一付的
// 最终防线）-> 落扣款流水和 outbox 消息。
//
// 订单状态的推进【不在】这个事务里：提交成功后由事件分发把订单置为
// CONFIRMED —— 扣款成功而状态推进失败时，钱不会被回滚，
// 状态由效果重放补齐。
//
// 余额的版本冲突（比如同一个用户并发支付两个订单）重试整个事务，
// 次数用尽报 ErrConflictExceeded
func (s *PaymentService) Pay(ctx context.Context, req *PayRequest) (*PayResponse, error) {
	lockKey := "payment:order:" + req.OrderID
	var resp *PayResponse

	err := s.locks.WithLock(ctx, lockKey, s.cfg.Business.LockWait(), s.cfg.Business.LockLease(), func(ctx context.Context) error {
		return withVersionRetry(ctx, s.cfg.Business.MaxRetryCount, s.cfg.Business.RetryBackoff(), func() error {
			return s.relay.InTransaction(ctx, s.db, func(tx *gorm.DB, b *relay.Batch) error {
				order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, req.OrderID)
				if err != nil {
					return err
				}
				if order.OwnerID != req.OwnerID {
					return ErrOrderOwnerMismatch
				}

				// 先给出明确的重复支付错误；真正的防线是 order_id 唯一索引
				existing, err := s.paymentRepo.GetByOrderID(ctx, tx, req.OrderID)
				if err != nil {
					return err
				}
				if existing != nil {
					return repository.ErrPaymentAlreadyRecorded
				}

				if err := order.ValidatePayable(); err != nil {
					return err
				}

				balance, err := s.balanceRepo.GetByOwnerID(ctx, tx, req.OwnerID)
				if err != nil {
					return err
				}
				if err := s.balanceRepo.DecreaseCAS(ctx, tx, req.OwnerID, order.TotalAmount, balance.Version); err != nil {
					return err
				}

				payment := &model.Payment{
					PaymentNo: idgen.GeneratePaymentNo(),
					OrderID:   req.OrderID,
					OwnerID:   req.OwnerID,
					Amount:    order.TotalAmount,
					Status:    model.PaymentStatusSuccess,
				}
				if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
					return err
				}

				ledgerEntry := &model.BalanceLedgerEntry{
					EntryNo:   idgen.GenerateLedgerNo(),
					RequestID: payment.PaymentNo,
					OwnerID:   req.OwnerID,
					Amount:    -order.TotalAmount,
					Reason:    model.LedgerReasonPay,
				}
				if err := s.ledgerRepo.Create(ctx, tx, ledgerEntry); err != nil {
					return fmt.Errorf("记录流水失败: %w", err)
				}

				payload, _ := json.Marshal(map[string]interface{}{
					"payment_no": payment.PaymentNo,
					"order_id":   req.OrderID,
					"owner_id":   req.OwnerID,
					"amount":     order.TotalAmount,
					"status":     payment.Status,
					"paid_at":    time.Now().Format(time.RFC3339),
				})
				outboxMsg := &model.OutboxMessage{
					MessageKey: req.OrderID,
					Topic:      s.cfg.Kafka.Topic.PaymentResult,
					Payload:    string(payload),
					Status:     model.OutboxStatusPending,
				}
				if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
					return fmt.Errorf("写入消息失败: %w", err)
				}

				// 订单确认放到提交之后
				b.Enqueue(relay.OrderConfirmEffect(s.db, req.OrderID))

				resp = &PayResponse{
					PaymentNo: payment.PaymentNo,
					OrderID:   req.OrderID,
					Amount:    order.TotalAmount,
					Status:    payment.Status,
				}
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[PaymentService] 支付成功: orderID=%s, ownerID=%d, amount=%d", req.OrderID, req.OwnerID, resp.Amount)
	return resp, nil
}

// QueryPayment 查支付结果；订单确认是异步的，调用方轮询订单状态
func (s *PaymentService) QueryPayment(ctx context.Context, orderID string) (*PayResponse, error) {
	payment, err := s.paymentRepo.GetByOrderID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, errors.New("支付记录不存在")
	}

	return &PayResponse{
		PaymentNo: payment.PaymentNo,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Status:    payment.Status,
	}, nil
}
