// internal/service/order/domain/order.go
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"

	"oms/internal/pkg/apperr"
)

// Order 是订单聚合的根实体。状态只能通过 TransitionTo 变更，
// 金额只能通过 CalculateTotal 重算，保证不变量不被旁路。
type Order struct {
	ID              string
	CustomerID      string
	Status          Status
	Items           []*OrderItem
	TotalAmount     float64
	ShippingAddress string
	RetryCount      int    // 只增不减
	FailureReason   string
	Version         int64 // 每次持久化变更递增
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem 是订单行，归属且仅归属于一个订单。
// 商品名称和单价在 Saga 处理时从库存服务快照而来。
type OrderItem struct {
	ID          string
	ProductSKU  string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

// SetPricing 写入快照价格并重算小计。小计只在这里算，
// 保证单价或数量变化后二者始终一致。
func (i *OrderItem) SetPricing(name string, unitPrice float64) {
	i.ProductName = name
	i.UnitPrice = unitPrice
	i.Subtotal = round2(unitPrice * float64(i.Quantity))
}

// NewOrderItemInput 是创建订单时每一行的输入。
type NewOrderItemInput struct {
	SKU      string
	Quantity int
}

// NewOrder 工厂函数：校验入参并创建 PENDING 状态的新订单。
// 单价和小计此时为零，等 Saga 处理时再填。
func NewOrder(customerID, shippingAddress string, items []NewOrderItemInput) (*Order, error) {
	if customerID == "" {
		return nil, apperr.InvalidState("customer id is required")
	}
	if len(items) == 0 {
		return nil, apperr.InvalidState("order must contain at least one item")
	}

	now := time.Now().UTC()
	order := &Order{
		ID:              uuid.New().String(),
		CustomerID:      customerID,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, in := range items {
		if in.SKU == "" || in.Quantity <= 0 {
			return nil, apperr.InvalidState("order item needs a sku and a positive quantity")
		}
		order.Items = append(order.Items, &OrderItem{
			ID:         uuid.New().String(),
			ProductSKU: in.SKU,
			Quantity:   in.Quantity,
		})
	}
	return order, nil
}

// TransitionTo 执行一次经过状态机校验的跃迁。
// 非法跃迁返回 InvalidOrderState，且不改动任何字段。
func (o *Order) TransitionTo(target Status) error {
	if !o.Status.CanTransitionTo(target) {
		return apperr.InvalidOrderState(string(o.Status), string(target))
	}
	o.Status = target
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// CalculateTotal 把各行小计汇总为订单总额。
func (o *Order) CalculateTotal() {
	total := 0.0
	for _, item := range o.Items {
		total += item.Subtotal
	}
	o.TotalAmount = round2(total)
}

// RecordFailure 记录一次处理失败：重试计数加一，更新失败原因。
func (o *Order) RecordFailure(reason string) {
	o.RetryCount++
	o.FailureReason = reason
	o.UpdatedAt = time.Now().UTC()
}

// round2 金额保留两位小数。
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
