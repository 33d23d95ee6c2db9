// internal/service/order/infrastructure/models.go
package infrastructure

import (
	"time"

	"oms/internal/service/order/domain"
)

// OrderModel 是 Order 聚合在数据库中的表示。
type OrderModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	CustomerID      string `gorm:"index:idx_orders_customer_id;size:100;not null"`
	Status          string `gorm:"index:idx_orders_status;size:20;not null"`
	TotalAmount     float64
	ShippingAddress string           `gorm:"type:text"`
	RetryCount      int              `gorm:"not null;default:0"`
	FailureReason   string           `gorm:"type:text"`
	Version         int64            `gorm:"not null;default:0"`
	Items           []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time        `gorm:"index:idx_orders_created_at"`
	UpdatedAt       time.Time
}

func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 是订单行，随订单级联删除。
type OrderItemModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	OrderID     string `gorm:"index;size:36;not null"`
	ProductSKU  string `gorm:"size:64;not null"`
	ProductName string `gorm:"size:255"`
	Quantity    int    `gorm:"not null"`
	UnitPrice   float64
	Subtotal    float64
}

func (OrderItemModel) TableName() string {
	return "order_items"
}

func toDomainOrder(m *OrderModel) *domain.Order {
	order := &domain.Order{
		ID:              m.ID,
		CustomerID:      m.CustomerID,
		Status:          domain.Status(m.Status),
		TotalAmount:     m.TotalAmount,
		ShippingAddress: m.ShippingAddress,
		RetryCount:      m.RetryCount,
		FailureReason:   m.FailureReason,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	for i := range m.Items {
		item := &m.Items[i]
		order.Items = append(order.Items, &domain.OrderItem{
			ID:          item.ID,
			ProductSKU:  item.ProductSKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return order
}

func toOrderModel(o *domain.Order) *OrderModel {
	model := &OrderModel{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		RetryCount:      o.RetryCount,
		FailureReason:   o.FailureReason,
		Version:         o.Version,
	}
	for _, item := range o.Items {
		model.Items = append(model.Items, OrderItemModel{
			ID:          item.ID,
			OrderID:     o.ID,
			ProductSKU:  item.ProductSKU,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		})
	}
	return model
}
