package port

import "context"

// ProductInfo 是库存服务返回的商品快照。
type ProductInfo struct {
	SKU   string
	Name  string
	Price float64
}

// InventoryGateway 是库存服务的出站端口。实现负责跨网络调用，
// 并把远端的业务拒绝与不可用翻译成 apperr 的错误分类：
// 库存不足 / 商品不存在原样透传，网络失败与超时一律翻译成
// DEPENDENCY_UNAVAILABLE。
type InventoryGateway interface {
	// GetProduct 获取商品名称与当前单价。
	GetProduct(ctx context.Context, sku string) (*ProductInfo, error)

	// Reserve 为订单预占库存。
	Reserve(ctx context.Context, sku string, qty int, orderID string) error

	// Release 是 Reserve 的补偿，释放已预占的库存。
	Release(ctx context.Context, sku string, qty int, orderID string) error
}
