// internal/service/order/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// 订单事件类型。
const (
	EventTypeCreated       = "CREATED"
	EventTypeStatusUpdated = "STATUS_UPDATED"
)

// OrderEvent 是订单状态变化的事实记录，以订单ID为分区键发布，
// 同一订单的事件流保证有序。
type OrderEvent struct {
	EventID        string           `json:"eventId"`
	OrderID        string           `json:"orderId"`
	EventType      string           `json:"eventType"`
	PreviousStatus Status           `json:"previousStatus,omitempty"`
	NewStatus      Status           `json:"newStatus"`
	CustomerID     string           `json:"customerId,omitempty"`
	Items          []OrderItemEvent `json:"items,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// OrderItemEvent 是事件里携带的订单行摘要。
type OrderItemEvent struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// EventCreated 构造下单事件，携带客户和行项目信息，驱动 Saga 开始处理。
func EventCreated(order *Order) *OrderEvent {
	items := make([]OrderItemEvent, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemEvent{SKU: item.ProductSKU, Quantity: item.Quantity})
	}
	return &OrderEvent{
		EventID:    uuid.New().String(),
		OrderID:    order.ID,
		EventType:  EventTypeCreated,
		NewStatus:  StatusPending,
		CustomerID: order.CustomerID,
		Items:      items,
		Timestamp:  time.Now().UTC(),
	}
}

// EventStatusChanged 构造状态变更事件。reason 在失败和取消时携带。
func EventStatusChanged(orderID string, from, to Status, reason string) *OrderEvent {
	return &OrderEvent{
		EventID:        uuid.New().String(),
		OrderID:        orderID,
		EventType:      EventTypeStatusUpdated,
		PreviousStatus: from,
		NewStatus:      to,
		Reason:         reason,
		Timestamp:      time.Now().UTC(),
	}
}
