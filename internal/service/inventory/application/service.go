// internal/service/inventory/application/service.go
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"oms/internal/pkg/apperr"
	"oms/internal/pkg/logger"
	"oms/internal/service/inventory/domain"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Stock reservation attempts by result.",
	}, []string{"result"})

	versionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_version_conflicts_total",
		Help: "Optimistic version conflicts observed during ledger writes.",
	})
)

// InventoryService 实现库存台账的全部用例。
//
// 并发纪律（两层防护）：
//  1. 每个变更操作先拿到 SKU 级别的排他锁，再做 读取->校验->写回；
//  2. 写回本身仍带版本号前置条件。锁没覆盖到的窗口（锁获取失败重试、
//     进程外的直接写入）由版本冲突兜底，冲突在内部做有限退避重试。
type InventoryService struct {
	repo   domain.ProductRepository
	locker domain.StockLocker
	events domain.EventPublisher
	tracer trace.Tracer

	versionRetries    int
	versionRetryDelay time.Duration
}

func NewInventoryService(repo domain.ProductRepository, locker domain.StockLocker, events domain.EventPublisher, tracer trace.Tracer, versionRetries int, versionRetryDelay time.Duration) *InventoryService {
	return &InventoryService{
		repo:              repo,
		locker:            locker,
		events:            events,
		tracer:            tracer,
		versionRetries:    versionRetries,
		versionRetryDelay: versionRetryDelay,
	}
}

// Reserve 为订单预占库存。
func (s *InventoryService) Reserve(ctx context.Context, sku string, qty int, orderID string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("sku", sku),
		attribute.Int("quantity", qty),
		attribute.String("order.id", orderID),
	)

	product, err := s.mutate(ctx, sku, func(p *domain.Product) (*domain.InventoryEvent, error) {
		previousStock := p.AvailableQuantity()
		if err := p.Reserve(qty); err != nil {
			return nil, err
		}
		return domain.EventReserved(sku, qty, orderID, previousStock), nil
	})
	if err != nil {
		reservationsTotal.WithLabelValues(resultLabel(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return nil, err
	}

	reservationsTotal.WithLabelValues("ok").Inc()
	logger.Ctx(ctx).Info().
		Str("sku", sku).Int("quantity", qty).Str("order_id", orderID).
		Int("reserved", product.ReservedQuantity).
		Msg("stock reserved")
	return product, nil
}

// Release 释放预占，是 Reserve 的补偿。即便上游的预占只成功了一部分，
// 这里的校验也保证预占量绝不会被减到零以下。
func (s *InventoryService) Release(ctx context.Context, sku string, qty int, orderID string) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(
		attribute.String("sku", sku),
		attribute.Int("quantity", qty),
		attribute.String("order.id", orderID),
	)

	product, err := s.mutate(ctx, sku, func(p *domain.Product) (*domain.InventoryEvent, error) {
		previousStock := p.AvailableQuantity()
		if err := p.Release(qty); err != nil {
			return nil, err
		}
		return domain.EventReleased(sku, qty, orderID, previousStock), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("sku", sku).Int("quantity", qty).Str("order_id", orderID).
		Int("reserved", product.ReservedQuantity).
		Msg("stock released")
	return product, nil
}

// ConfirmDeduction 发货扣减：预占转出库。属于发货流程的台账原语。
func (s *InventoryService) ConfirmDeduction(ctx context.Context, sku string, qty int) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ConfirmDeduction")
	defer span.End()
	span.SetAttributes(attribute.String("sku", sku), attribute.Int("quantity", qty))

	product, err := s.mutate(ctx, sku, func(p *domain.Product) (*domain.InventoryEvent, error) {
		previousStock := p.AvailableQuantity()
		if err := p.ConfirmDeduction(qty); err != nil {
			return nil, err
		}
		return domain.EventDeducted(sku, qty, previousStock), nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", qty).Msg("deduction confirmed")
	return product, nil
}

// CheckStock 只读查询可售量。
func (s *InventoryService) CheckStock(ctx context.Context, sku string) (*StockCheckResponse, error) {
	product, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	available := product.AvailableQuantity()
	return &StockCheckResponse{
		SKU:               sku,
		AvailableQuantity: available,
		InStock:           available > 0,
	}, nil
}

// GetProduct 按 SKU 返回商品信息（订单侧处理时用来拿名称和单价）。
func (s *InventoryService) GetProduct(ctx context.Context, sku string) (*ProductResponse, error) {
	product, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

// CreateProduct 商品上架。SKU 重复直接拒绝。
func (s *InventoryService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.CreateProduct")
	defer span.End()

	if req.Quantity < 0 {
		return nil, apperr.InvalidState("initial quantity must not be negative")
	}

	product := &domain.Product{
		ID:          uuid.New().String(),
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Quantity:    req.Quantity,
		Price:       req.Price,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("sku", product.SKU).Int("quantity", product.Quantity).Msg("product created")
	return toProductResponse(product), nil
}

// UpdateStock 人工调整总量（补货、盘点）。走和其它变更相同的锁与版本纪律。
func (s *InventoryService) UpdateStock(ctx context.Context, sku string, quantity int) (*ProductResponse, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.UpdateStock")
	defer span.End()

	product, err := s.mutate(ctx, sku, func(p *domain.Product) (*domain.InventoryEvent, error) {
		if quantity < p.ReservedQuantity {
			return nil, apperr.InvalidState("cannot set quantity %d below reserved %d for %s", quantity, p.ReservedQuantity, sku)
		}
		p.Quantity = quantity
		return nil, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("sku", sku).Int("quantity", quantity).Msg("stock updated")
	return toProductResponse(product), nil
}

// mutate 是所有台账变更共用的骨架：锁 SKU -> 读 -> 业务校验 -> 带版本写回。
// 版本冲突在锁内做有限次退避重试（首次 delay，逐次翻倍），重试耗尽才上抛。
// apply 返回的事件在写回成功后发布；发布失败只记日志，本地写入即事实。
func (s *InventoryService) mutate(ctx context.Context, sku string, apply func(p *domain.Product) (*domain.InventoryEvent, error)) (*domain.Product, error) {
	release, err := s.locker.Acquire(ctx, sku)
	if err != nil {
		return nil, err
	}
	defer release()

	delay := s.versionRetryDelay
	for attempt := 0; ; attempt++ {
		product, err := s.repo.FindBySKU(ctx, sku)
		if err != nil {
			return nil, err
		}

		event, err := apply(product)
		if err != nil {
			return nil, err
		}

		err = s.repo.UpdateWithVersion(ctx, product)
		if err == nil {
			if event != nil {
				s.publish(ctx, event)
			}
			return product, nil
		}
		if !errors.Is(err, apperr.ConcurrentModification("", "")) || attempt >= s.versionRetries-1 {
			return nil, err
		}

		versionConflictsTotal.Inc()
		logger.Ctx(ctx).Warn().Str("sku", sku).Int("attempt", attempt+1).
			Dur("backoff", delay).Msg("version conflict on ledger write, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
}

func (s *InventoryService) publish(ctx context.Context, event *domain.InventoryEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		// 事件只是尽力通知，不回滚已提交的本地变更
		logger.Ctx(ctx).Error().Err(err).
			Str("event_type", event.EventType).Str("sku", event.SKU).
			Msg("failed to publish inventory event")
	}
}

func toProductResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:                p.ID,
		SKU:               p.SKU,
		Name:              p.Name,
		Description:       p.Description,
		Quantity:          p.Quantity,
		ReservedQuantity:  p.ReservedQuantity,
		AvailableQuantity: p.AvailableQuantity(),
		Price:             p.Price,
	}
}

func resultLabel(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeInsufficientInventory:
		return "insufficient"
	case apperr.CodeNotFound:
		return "not_found"
	case apperr.CodeConcurrentModification:
		return "conflict"
	default:
		return "error"
	}
}
