// internal/service/inventory/domain/event.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// 库存事件类型。
const (
	EventTypeReserved = "RESERVED"
	EventTypeReleased = "RELEASED"
	EventTypeDeducted = "DEDUCTED"
)

// InventoryEvent 是一次库存变更的不可变事实记录，按 SKU 作为分区键发布。
// PreviousStock/NewStock 记录变更前后的可售量快照。
type InventoryEvent struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	SKU           string    `json:"sku"`
	Quantity      int       `json:"quantity"`
	OrderID       string    `json:"orderId,omitempty"` // 关联订单，发货扣减之外的事件都有
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
	Timestamp     time.Time `json:"timestamp"`
}

func newInventoryEvent(eventType, sku string, qty int, orderID string, previousStock, newStock int) *InventoryEvent {
	return &InventoryEvent{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		SKU:           sku,
		Quantity:      qty,
		OrderID:       orderID,
		PreviousStock: previousStock,
		NewStock:      newStock,
		Timestamp:     time.Now().UTC(),
	}
}

// EventReserved 构造预占事件。previousStock 传变更前的可售量。
func EventReserved(sku string, qty int, orderID string, previousStock int) *InventoryEvent {
	return newInventoryEvent(EventTypeReserved, sku, qty, orderID, previousStock, previousStock-qty)
}

// EventReleased 构造释放事件。
func EventReleased(sku string, qty int, orderID string, previousStock int) *InventoryEvent {
	return newInventoryEvent(EventTypeReleased, sku, qty, orderID, previousStock, previousStock+qty)
}

// EventDeducted 构造发货扣减事件。扣减动的是预占量，可售量不变。
func EventDeducted(sku string, qty int, previousStock int) *InventoryEvent {
	return newInventoryEvent(EventTypeDeducted, sku, qty, "", previousStock, previousStock)
}
