// internal/service/inventory/infrastructure/models.go
package infrastructure

import (
	"time"

	"oms/internal/service/inventory/domain"
)

// ProductModel 是 Product 聚合在数据库中的表示。
type ProductModel struct {
	ID               string `gorm:"primaryKey;size:36"`
	SKU              string `gorm:"uniqueIndex:idx_products_sku;size:64;not null"`
	Name             string `gorm:"size:255;not null"`
	Description      string `gorm:"type:text"`
	Quantity         int    `gorm:"not null"`
	ReservedQuantity int    `gorm:"not null;default:0"`
	Price            float64
	Version          int64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ProductModel) TableName() string {
	return "products"
}

func toDomainProduct(m *ProductModel) *domain.Product {
	return &domain.Product{
		ID:               m.ID,
		SKU:              m.SKU,
		Name:             m.Name,
		Description:      m.Description,
		Quantity:         m.Quantity,
		ReservedQuantity: m.ReservedQuantity,
		Price:            m.Price,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toProductModel(p *domain.Product) *ProductModel {
	return &ProductModel{
		ID:               p.ID,
		SKU:              p.SKU,
		Name:             p.Name,
		Description:      p.Description,
		Quantity:         p.Quantity,
		ReservedQuantity: p.ReservedQuantity,
		Price:            p.Price,
		Version:          p.Version,
	}
}
