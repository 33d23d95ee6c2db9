// internal/service/inventory/application/dto.go
package application

// CreateProductRequest 是商品上架用例的输入。
type CreateProductRequest struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

// ProductResponse 是对外返回的商品视图。
type ProductResponse struct {
	ID                string  `json:"id"`
	SKU               string  `json:"sku"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Quantity          int     `json:"quantity"`
	ReservedQuantity  int     `json:"reservedQuantity"`
	AvailableQuantity int     `json:"availableQuantity"`
	Price             float64 `json:"price"`
}

// StockCheckResponse 是库存查询的输出。
type StockCheckResponse struct {
	SKU               string `json:"sku"`
	AvailableQuantity int    `json:"availableQuantity"`
	InStock           bool   `json:"inStock"`
}
