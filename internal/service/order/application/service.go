// internal/service/order/application/service.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"oms/internal/pkg/logger"
	"oms/internal/service/order/domain"
	"oms/internal/service/order/port"
)

// OrderApplicationService 只做业务流程编排：下单、查询、取消、状态流转，
// 以及 saga.go 里的异步处理流程。
type OrderApplicationService struct {
	orderRepo  domain.OrderRepository
	inventory  port.InventoryGateway
	events     port.OrderEventProducer
	tracer     trace.Tracer
	maxRetries int
}

func NewOrderApplicationService(orderRepo domain.OrderRepository, inventory port.InventoryGateway, events port.OrderEventProducer, tracer trace.Tracer, maxRetries int) *OrderApplicationService {
	return &OrderApplicationService{
		orderRepo:  orderRepo,
		inventory:  inventory,
		events:     events,
		tracer:     tracer,
		maxRetries: maxRetries,
	}
}

// PlaceOrder 下单入口：创建 PENDING 订单并发布 CREATED 事件，立即返回。
// 真正的库存预占由事件消费侧的 ProcessOrder 异步完成。
func (s *OrderApplicationService) PlaceOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	items := make([]domain.NewOrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.NewOrderItemInput{SKU: item.SKU, Quantity: item.Quantity})
	}

	order, err := domain.NewOrder(req.CustomerID, req.ShippingAddress, items)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist new order")
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("customer_id", order.CustomerID).
		Int("items", len(order.Items)).Msg("order placed, status PENDING")

	s.publish(ctx, domain.EventCreated(order))
	return toOrderResponse(order), nil
}

// GetOrder 按ID查询订单。
func (s *OrderApplicationService) GetOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// GetOrderStatus 只查状态，给轮询方一个轻量入口。
func (s *OrderApplicationService) GetOrderStatus(ctx context.Context, orderID string) (domain.Status, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

// UpdateStatus 执行一次人工/下游驱动的状态流转（备货、发货、送达）。
func (s *OrderApplicationService) UpdateStatus(ctx context.Context, orderID string, target domain.Status, reason string) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.String("target", string(target)))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	previous := order.Status
	if err := order.TransitionTo(target); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.orderRepo.UpdateWithVersion(ctx, order); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).
		Str("from", string(previous)).Str("to", string(target)).Msg("order status updated")
	s.publish(ctx, domain.EventStatusChanged(orderID, previous, target, reason))
	return toOrderResponse(order), nil
}

// CancelOrder 取消订单。只有库存确实被预占过（CONFIRMED/PROCESSING）
// 才需要释放；释放是尽力而为的并发扇出，个别失败不阻断取消本身。
func (s *OrderApplicationService) CancelOrder(ctx context.Context, orderID, reason string) (*OrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "order.CancelOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	previous := order.Status
	if err := order.TransitionTo(domain.StatusCancelled); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if previous == domain.StatusConfirmed || previous == domain.StatusProcessing {
		g, gctx := errgroup.WithContext(ctx)
		for _, item := range order.Items {
			item := item
			g.Go(func() error {
				if err := s.inventory.Release(gctx, item.ProductSKU, item.Quantity, order.ID); err != nil {
					// 补偿失败记录即可，剩下的释放继续跑
					logger.Ctx(gctx).Error().Err(err).
						Str("order_id", order.ID).Str("sku", item.ProductSKU).
						Msg("failed to release reservation during cancellation")
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	order.FailureReason = reason
	if err := s.orderRepo.UpdateWithVersion(ctx, order); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("order_id", orderID).Str("reason", reason).Msg("order cancelled")
	s.publish(ctx, domain.EventStatusChanged(orderID, previous, domain.StatusCancelled, reason))
	return toOrderResponse(order), nil
}

// publish 发布事件。发布失败只记日志：本地写入才是事实源。
func (s *OrderApplicationService) publish(ctx context.Context, event *domain.OrderEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("event_type", event.EventType).Str("order_id", event.OrderID).
			Msg("failed to publish order event")
	}
}
