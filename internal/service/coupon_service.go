package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"orderpay/internal/config"
	"orderpay/internal/infrastructure/lock"
	"orderpay/internal/model"
	"orderpay/internal/relay"
	"orderpay/internal/repository"

	"gorm.io/gorm"
)

type CouponService struct {
	db         *gorm.DB
	cfg        *config.Config
	locks      *lock.Coordinator
	relay      *relay.Relay
	couponRepo *repository.CouponRepository

	now func() time.Time // 测试注入
}

func NewCouponService(db *gorm.DB, cfg *config.Config, locks *lock.Coordinator, r *relay.Relay) *CouponService {
	return &CouponService{
		db:         db,
		cfg:        cfg,
		locks:      locks,
		relay:      r,
		couponRepo: repository.NewCouponRepository(db),
		now:        time.Now,
	}
}

type IssueCouponRequest struct {
	OwnerID    int64  `json:"owner_id" binding:"required"`
	CouponCode string `json:"coupon_code" binding:"required"`
}

type IssueCouponResponse struct {
	CouponCode string `json:"coupon_code"`
	Status     string `json:"status"`
}

// Issue 领取限量优惠券
//
// 同一张券的发放通过 coupon:issue:<code> 锁跨实例串行；锁内排他读券行、
// 校验有效期和每人一张，再条件扣减余量。余量扣减的 remaining >= 1 条件
// 和领取记录的唯一索引共同保证：发放总数不超过初始量、每人至多一张，
// 即使锁失效（比如租约过期后两个持有者并存）也不会超发
func (s *CouponService) Issue(ctx context.Context, req *IssueCouponRequest) (*IssueCouponResponse, error) {
	lockKey := "coupon:issue:" + req.CouponCode
	var resp *IssueCouponResponse

	err := s.locks.WithLock(ctx, lockKey, s.cfg.Business.LockWait(), s.cfg.Business.LockLease(), func(ctx context.Context) error {
		return s.relay.InTransaction(ctx, s.db, func(tx *gorm.DB, b *relay.Batch) error {
			coupon, err := s.couponRepo.GetByCodeForUpdate(ctx, tx, req.CouponCode)
			if err != nil {
				return err
			}

			issued, err := s.couponRepo.HasIssued(ctx, tx, req.OwnerID, req.CouponCode)
			if err != nil {
				return fmt.Errorf("查询领取记录失败: %w", err)
			}
			if issued {
				return model.ErrCouponIssuedDup
			}

			if err := coupon.ValidateUsable(s.now()); err != nil {
				return err
			}

			if err := s.couponRepo.DecreaseQuantity(ctx, tx, req.CouponCode); err != nil {
				return err
			}

			issuance := &model.CouponIssuance{
				OwnerID:    req.OwnerID,
				CouponCode: req.CouponCode,
				Status:     model.IssuanceStatusUnused,
			}
			if err := s.couponRepo.CreateIssuance(ctx, tx, issuance); err != nil {
				return err
			}

			resp = &IssueCouponResponse{
				CouponCode: req.CouponCode,
				Status:     issuance.Status,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[CouponService] 优惠券已发放: code=%s, ownerID=%d", req.CouponCode, req.OwnerID)
	return resp, nil
}

// Apply 下单时使用优惠券，必须在订单创建事务内调用
//
// 校验链：已领取 -> 未使用 -> 在有效期 -> 置为已使用，返回优惠金额
func (s *CouponService) Apply(ctx context.Context, tx *gorm.DB, ownerID int64, code string, total int64) (int64, error) {
	coupon, err := s.couponRepo.GetByCode(ctx, tx, code)
	if err != nil {
		return 0, err
	}

	issuance, err := s.couponRepo.GetIssuance(ctx, tx, ownerID, code)
	if err != nil {
		return 0, err
	}
	if issuance.Status != model.IssuanceStatusUnused {
		return 0, model.ErrCouponUsed
	}

	if err := coupon.ValidateUsable(s.now()); err != nil {
		return 0, err
	}

	if err := s.couponRepo.MarkUsed(ctx, tx, ownerID, code); err != nil {
		return 0, err
	}

	return coupon.Discount(total), nil
}
