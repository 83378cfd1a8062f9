package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"orderpay/internal/config"
	"orderpay/internal/infrastructure/lock"
	"orderpay/internal/model"
	"orderpay/internal/ratelimit"
	"orderpay/internal/relay"
	"orderpay/internal/repository"
	"orderpay/pkg/idgen"

	"gorm.io/gorm"
)

type BalanceService struct {
	db          *gorm.DB
	cfg         *config.Config
	locks       *lock.Coordinator
	rate        *ratelimit.Guard
	relay       *relay.Relay
	balanceRepo *repository.BalanceRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewBalanceService(db *gorm.DB, cfg *config.Config, locks *lock.Coordinator, rate *ratelimit.Guard, r *relay.Relay) *BalanceService {
	return &BalanceService{
		db:          db,
		cfg:         cfg,
		locks:       locks,
		rate:        rate,
		relay:       r,
		balanceRepo: repository.NewBalanceRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

type ChargeRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	OwnerID   int64  `json:"owner_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reason    string `json:"reason"`
}

type ChargeResponse struct {
	OwnerID   int64  `json:"owner_id"`
	Balance   int64  `json:"balance"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message,omitempty"`
}

// Charge 余额充值
//
// 整条链路：限流 -> 幂等快路径 -> 分布式锁 -> 锁内复查 -> CAS 写入（有界重试）
//
// 【幂等检查的位置】先锁外查一次（重试请求不用排队抢锁就能返回），
// 拿到锁以后再查一次 —— 两个相同 request_id 的首次请求同时到达时，
// 后进锁的那个在复查时能看到先行者的结果。台账 request_id 唯一索引
// 是最后一道防线：复查和写入之间仍有缝隙时，重复插入在事务里撞唯一键，
// 连同扣错的余额一起回滚
func (s *BalanceService) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResponse, error) {
	if err := s.rate.Check(fmt.Sprintf("balance:charge:%d", req.OwnerID)); err != nil {
		return nil, err
	}

	if req.Amount < s.cfg.Business.MinChargeAmount {
		return nil, fmt.Errorf("%w（最低 %d）", model.ErrMinimumCharge, s.cfg.Business.MinChargeAmount)
	}

	// 幂等快路径
	entry, err := s.ledgerRepo.GetByRequestID(ctx, nil, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("查询流水失败: %w", err)
	}
	if entry != nil {
		return s.duplicateResponse(ctx, entry)
	}

	lockKey := fmt.Sprintf("balance:charge:%d", req.OwnerID)
	var resp *ChargeResponse

	err = s.locks.WithLock(ctx, lockKey, s.cfg.Business.LockWait(), s.cfg.Business.LockLease(), func(ctx context.Context) error {
		// 锁内复查幂等
		entry, err := s.ledgerRepo.GetByRequestID(ctx, nil, req.RequestID)
		if err != nil {
			return fmt.Errorf("查询流水失败: %w", err)
		}
		if entry != nil {
			resp, err = s.duplicateResponse(ctx, entry)
			return err
		}

		return withVersionRetry(ctx, s.cfg.Business.MaxRetryCount, s.cfg.Business.RetryBackoff(), func() error {
			return s.relay.InTransaction(ctx, s.db, func(tx *gorm.DB, b *relay.Batch) error {
				balance, err := s.balanceRepo.GetOrCreate(ctx, tx, req.OwnerID)
				if err != nil {
					return fmt.Errorf("获取余额账户失败: %w", err)
				}

				if err := s.balanceRepo.ChargeCAS(ctx, tx, req.OwnerID, req.Amount, balance.Version); err != nil {
					return err
				}

				ledgerEntry := &model.BalanceLedgerEntry{
					EntryNo:   idgen.GenerateLedgerNo(),
					RequestID: req.RequestID,
					OwnerID:   req.OwnerID,
					Amount:    req.Amount,
					Reason:    model.LedgerReasonCharge,
				}
				if err := s.ledgerRepo.Create(ctx, tx, ledgerEntry); err != nil {
					return err
				}

				b.Enqueue(relay.BalanceChargedEffect(s.db, s.cfg.Kafka.Topic.BalanceEvent, relay.BalanceChargedPayload{
					RequestID: req.RequestID,
					OwnerID:   req.OwnerID,
					Amount:    req.Amount,
					Reason:    req.Reason,
				}))

				resp = &ChargeResponse{
					OwnerID: req.OwnerID,
					Balance: balance.Amount + req.Amount,
				}
				return nil
			})
		})
	})

	if errors.Is(err, repository.ErrDuplicateRequest) {
		// 复查和写入之间被同 request_id 的请求抢先，整个事务已回滚
		entry, qerr := s.ledgerRepo.GetByRequestID(ctx, nil, req.RequestID)
		if qerr != nil || entry == nil {
			return nil, fmt.Errorf("查询流水失败: %v", qerr)
		}
		return s.duplicateResponse(ctx, entry)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[BalanceService] 充值成功: ownerID=%d, amount=%d, requestID=%s", req.OwnerID, req.Amount, req.RequestID)
	return resp, nil
}

// duplicateResponse 重复请求不算错误，返回先前那次的结果
func (s *BalanceService) duplicateResponse(ctx context.Context, entry *model.BalanceLedgerEntry) (*ChargeResponse, error) {
	balance, err := s.balanceRepo.GetByOwnerID(ctx, nil, entry.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}

	log.Printf("[BalanceService] 幂等请求，返回已有结果: requestID=%s, ownerID=%d", entry.RequestID, entry.OwnerID)
	return &ChargeResponse{
		OwnerID:   entry.OwnerID,
		Balance:   balance.Amount,
		Duplicate: true,
		Message:   "该笔充值已处理",
	}, nil
}

func (s *BalanceService) GetBalance(ctx context.Context, ownerID int64) (*model.Balance, error) {
	return s.balanceRepo.GetOrCreate(ctx, nil, ownerID)
}

func (s *BalanceService) ListLedger(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.BalanceLedgerEntry, int64, error) {
	return s.ledgerRepo.ListByOwnerID(ctx, ownerID, page, pageSize)
}
