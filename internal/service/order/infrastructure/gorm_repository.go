// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"oms/internal/pkg/apperr"
	"oms/internal/service/order/domain"
)

// GormOrderRepository 基于 GORM 的订单仓储，乐观锁靠 version 列实现。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	model := toOrderModel(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return apperr.DependencyUnavailable("mysql", err)
	}
	return nil
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var model OrderModel
	err := r.db.WithContext(ctx).Preload("Items").First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("order", id)
	}
	if err != nil {
		return nil, apperr.DependencyUnavailable("mysql", err)
	}
	return toDomainOrder(&model), nil
}

// UpdateWithVersion 以 CAS 方式落盘订单头，并同步行项目的定价快照。
// WHERE 条件同时匹配 id 和加载时的 version，抢不到就是并发冲突。
func (r *GormOrderRepository) UpdateWithVersion(ctx context.Context, order *domain.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&OrderModel{}).
			Where("id = ? AND version = ?", order.ID, order.Version).
			Updates(map[string]interface{}{
				"status":         string(order.Status),
				"total_amount":   order.TotalAmount,
				"retry_count":    order.RetryCount,
				"failure_reason": order.FailureReason,
				"version":        order.Version + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperr.ConcurrentModification("order", order.ID)
		}

		// 行项目的名称和价格是处理阶段补齐的，随订单头一起更新
		for _, item := range order.Items {
			if err := tx.Model(&OrderItemModel{}).
				Where("id = ?", item.ID).
				Updates(map[string]interface{}{
					"product_name": item.ProductName,
					"unit_price":   item.UnitPrice,
					"subtotal":     item.Subtotal,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeConcurrentModification {
			return err
		}
		return apperr.DependencyUnavailable("mysql", err)
	}

	order.Version++
	return nil
}
