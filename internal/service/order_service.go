package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"orderpay/internal/config"
	"orderpay/internal/model"
	"orderpay/internal/relay"
	"orderpay/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrEmptyOrder = errors.New("订单不能没有商品")

// Catalog 商品目录适配口，下单计价时取单价
type Catalog interface {
	GetUnitPrice(ctx context.Context, productID, variant string) (int64, error)
}

type OrderService struct {
	db        *gorm.DB
	cfg       *config.Config
	relay     *relay.Relay
	catalog   Catalog
	coupons   *CouponService
	orderRepo *repository.OrderRepository
	stockRepo *repository.StockRepository
}

func NewOrderService(db *gorm.DB, cfg *config.Config, r *relay.Relay, catalog Catalog, coupons *CouponService) *OrderService {
	return &OrderService{
		db:        db,
		cfg:       cfg,
		relay:     r,
		catalog:   catalog,
		coupons:   coupons,
		orderRepo: repository.NewOrderRepository(db),
		stockRepo: repository.NewStockRepository(db),
	}
}

type OrderItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Variant   string `json:"variant" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required,gt=0"`
}

type CreateOrderRequest struct {
	OwnerID    int64              `json:"owner_id" binding:"required"`
	Items      []OrderItemRequest `json:"items" binding:"required,dive"`
	CouponCode string             `json:"coupon_code"`
}

// CreateOrder 下单
//
// 一个事务内完成：逐项预留库存（排他读 + 条件扣减）-> 计价 ->
// 可选的优惠券核销 -> 落订单。任何一项库存不足整单回滚，
// 已扣的其他项一起退回
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*model.Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	order := &model.Order{
		ID:      uuid.NewString(),
		OwnerID: req.OwnerID,
		Status:  model.OrderStatusCreated,
	}

	err := s.relay.InTransaction(ctx, s.db, func(tx *gorm.DB, b *relay.Batch) error {
		var total int64

		for _, item := range req.Items {
			if _, err := s.stockRepo.GetForUpdate(ctx, tx, item.ProductID, item.Variant); err != nil {
				return err
			}
			if err := s.stockRepo.Decrease(ctx, tx, item.ProductID, item.Variant, item.Quantity); err != nil {
				return fmt.Errorf("%w: product=%s variant=%s", err, item.ProductID, item.Variant)
			}

			unitPrice, err := s.catalog.GetUnitPrice(ctx, item.ProductID, item.Variant)
			if err != nil {
				return fmt.Errorf("查询单价失败: %w", err)
			}

			order.Items = append(order.Items, model.OrderItem{
				OrderID:   order.ID,
				ProductID: item.ProductID,
				Variant:   item.Variant,
				Quantity:  item.Quantity,
				UnitPrice: unitPrice,
			})
			total += unitPrice * item.Quantity
		}

		if req.CouponCode != "" {
			discount, err := s.coupons.Apply(ctx, tx, req.OwnerID, req.CouponCode, total)
			if err != nil {
				return err
			}
			total -= discount
		}

		order.TotalAmount = total
		return s.orderRepo.Create(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[OrderService] 订单已创建: orderID=%s, ownerID=%d, total=%d", order.ID, req.OwnerID, order.TotalAmount)
	return order, nil
}

// CancelOrder 取消订单，只有 CREATED 状态允许；库存同事务回补
func (s *OrderService) CancelOrder(ctx context.Context, orderID string) error {
	return s.relay.InTransaction(ctx, s.db, func(tx *gorm.DB, b *relay.Batch) error {
		order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if err := order.Cancel(); err != nil {
			return err
		}
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusCreated, model.OrderStatusCancelled); err != nil {
			return err
		}

		items, err := s.orderItems(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := s.stockRepo.Increase(ctx, tx, item.ProductID, item.Variant, item.Quantity); err != nil {
				return fmt.Errorf("回补库存失败: %w", err)
			}
		}

		log.Printf("[OrderService] 订单已取消: orderID=%s", orderID)
		return nil
	})
}

func (s *OrderService) orderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error
	return items, err
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orderRepo.GetByID(ctx, nil, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, ownerID int64, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByOwnerID(ctx, ownerID, page, pageSize)
}
