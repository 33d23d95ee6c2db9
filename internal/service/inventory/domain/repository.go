// internal/service/inventory/domain/repository.go
package domain

import "context"

// ProductRepository 定义商品行的持久化接口，由基础设施层实现。
type ProductRepository interface {
	// FindBySKU 按业务主键查找。不存在时返回 NOT_FOUND。
	FindBySKU(ctx context.Context, sku string) (*Product, error)

	// Create 插入新商品。SKU 冲突返回 INVALID_STATE。
	Create(ctx context.Context, product *Product) error

	// UpdateWithVersion 以 product.Version 为前置条件写回整行。
	// 版本不匹配返回 CONCURRENT_MODIFICATION，且不落任何修改；
	// 成功时递增 product.Version。
	UpdateWithVersion(ctx context.Context, product *Product) error
}

// StockLocker 提供以 SKU 为粒度的互斥访问。实现必须有界等待，
// 拿不到锁时返回错误而不是无限阻塞。
type StockLocker interface {
	// Acquire 获取 sku 的排他锁，返回释放函数。
	Acquire(ctx context.Context, sku string) (release func(), err error)
}

// EventPublisher 是库存事件的出站端口。
type EventPublisher interface {
	Publish(ctx context.Context, event *InventoryEvent) error
}
