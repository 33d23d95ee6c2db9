// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"oms/internal/pkg/apperr"
	"oms/internal/service/inventory/domain"
)

const mysqlErrDuplicateEntry = 1062

// GormProductRepository 是 ProductRepository 的 GORM 实现。
type GormProductRepository struct {
	db *gorm.DB
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

func (r *GormProductRepository) FindBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).Where("sku = ?", sku).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("product", sku)
		}
		return nil, err
	}
	return toDomainProduct(&model), nil
}

func (r *GormProductRepository) Create(ctx context.Context, product *domain.Product) error {
	err := r.db.WithContext(ctx).Create(toProductModel(product)).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return apperr.InvalidState("product with SKU %s already exists", product.SKU)
		}
		return err
	}
	return nil
}

// UpdateWithVersion 带显式版本前置条件的整行写回。
// WHERE 里带上旧版本号，影响行数为 0 即说明有人先写赢了。
func (r *GormProductRepository) UpdateWithVersion(ctx context.Context, product *domain.Product) error {
	result := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND version = ?", product.ID, product.Version).
		Updates(map[string]interface{}{
			"name":              product.Name,
			"description":       product.Description,
			"quantity":          product.Quantity,
			"reserved_quantity": product.ReservedQuantity,
			"price":             product.Price,
			"version":           product.Version + 1,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.ConcurrentModification("product", product.SKU)
	}
	product.Version++
	return nil
}
