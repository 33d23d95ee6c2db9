// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义订单聚合的持久化接口，由基础设施层实现。
type OrderRepository interface {
	// Create 插入订单及其全部行项目。
	Create(ctx context.Context, order *Order) error

	// FindByID 加载订单聚合（含行项目）。不存在返回 NOT_FOUND。
	FindByID(ctx context.Context, id string) (*Order, error)

	// UpdateWithVersion 以 order.Version 为前置条件写回订单与行项目。
	// 版本不匹配返回 CONCURRENT_MODIFICATION；成功时递增 order.Version。
	UpdateWithVersion(ctx context.Context, order *Order) error
}
