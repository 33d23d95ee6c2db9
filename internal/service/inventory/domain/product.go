// internal/service/inventory/domain/product.go
package domain

import (
	"time"

	"oms/internal/pkg/apperr"
)

// Product 是库存台账的聚合根。SKU 是业务主键，也是行级锁和
// 乐观锁版本号的粒度：所有数量变更都必须经过本聚合的方法。
//
// 核心不变量: 0 <= ReservedQuantity <= Quantity。
type Product struct {
	ID               string
	SKU              string
	Name             string
	Description      string
	Quantity         int // 仓库总量
	ReservedQuantity int // 已被未完结订单预占的量
	Price            float64
	Version          int64 // 每次持久化变更递增，写入时做显式比较
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableQuantity 是对外暴露的可售量。
func (p *Product) AvailableQuantity() int {
	return p.Quantity - p.ReservedQuantity
}

// Reserve 为订单预占库存。可售量不足返回 InsufficientInventory，
// 不做任何修改。
func (p *Product) Reserve(qty int) error {
	if qty <= 0 {
		return apperr.InvalidState("reserve quantity must be positive, got %d", qty)
	}
	if available := p.AvailableQuantity(); available < qty {
		return apperr.InsufficientInventory(p.SKU, qty, available)
	}
	p.ReservedQuantity += qty
	return nil
}

// Release 释放预占。释放量超过已预占量是非法状态：宁可拒绝，
// 也绝不把 ReservedQuantity 打成负数。
func (p *Product) Release(qty int) error {
	if qty <= 0 {
		return apperr.InvalidState("release quantity must be positive, got %d", qty)
	}
	if qty > p.ReservedQuantity {
		return apperr.InvalidState("cannot release %d units of %s, only %d reserved", qty, p.SKU, p.ReservedQuantity)
	}
	p.ReservedQuantity -= qty
	return nil
}

// ConfirmDeduction 发货扣减：预占转为实际出库，总量与预占量同时减少。
func (p *Product) ConfirmDeduction(qty int) error {
	if qty <= 0 {
		return apperr.InvalidState("deduction quantity must be positive, got %d", qty)
	}
	if qty > p.ReservedQuantity {
		return apperr.InvalidState("cannot deduct %d units of %s, only %d reserved", qty, p.SKU, p.ReservedQuantity)
	}
	p.ReservedQuantity -= qty
	p.Quantity -= qty
	return nil
}
