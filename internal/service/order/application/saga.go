// internal/service/order/application/saga.go
package application

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"oms/internal/pkg/logger"
	"oms/internal/service/order/domain"
)

var (
	sagaOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_saga_outcomes_total",
		Help: "Order processing saga outcomes.",
	}, []string{"outcome"})

	sagaCompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_saga_compensations_total",
		Help: "Compensation passes executed after a partial reservation failure.",
	})
)

// ProcessOrder 是订单 Saga 的主流程，由 CREATED 事件触发。
//
// 正向步骤：按行项目顺序，先取商品快照价，再跨服务预占库存；
// 全部成功则汇总金额并把订单置为 CONFIRMED。
// 任何一步失败：对本轮已预占的行做补偿释放（尽力而为，全部尝试），
// 重试计数加一；到达上限置为 FAILED，否则留在 PENDING 等下一次触发。
//
// 没有跨库的全局事务，正确性完全建立在两点上：每个完成的预占都可补偿，
// 以及任何失败路径都必须先跑完补偿再落订单状态。
func (s *OrderApplicationService) ProcessOrder(ctx context.Context, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "order.ProcessOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	// 重入保护：同一事件可能被投递多次，非 PENDING 一律静默跳过
	if order.Status != domain.StatusPending {
		logger.Ctx(ctx).Warn().Str("order_id", orderID).Str("status", string(order.Status)).
			Msg("order is not PENDING, skipping processing")
		return nil
	}

	// 本轮成功预占的行。补偿只释放这一轮占到的量，
	// 重试轮次之间不会互相多放。
	reserved := make([]*domain.OrderItem, 0, len(order.Items))

	procErr := s.reserveAll(ctx, order, &reserved)

	if procErr == nil {
		order.CalculateTotal()
		if err := order.TransitionTo(domain.StatusConfirmed); err != nil {
			procErr = err
		} else if err := s.orderRepo.UpdateWithVersion(ctx, order); err != nil {
			// 确认状态落库失败也必须走补偿，否则预占就永久卡死
			procErr = err
			if reloaded, reloadErr := s.orderRepo.FindByID(ctx, orderID); reloadErr == nil {
				order = reloaded
			} else {
				logger.Ctx(ctx).Error().Err(reloadErr).Str("order_id", orderID).
					Msg("CRITICAL: failed to reload order after confirm-save failure")
			}
		}
	}

	if procErr != nil {
		span.RecordError(procErr)
		span.SetStatus(codes.Error, "order processing failed")
		s.compensate(ctx, order.ID, reserved)

		order.RecordFailure(procErr.Error())
		if order.RetryCount >= s.maxRetries {
			if err := order.TransitionTo(domain.StatusFailed); err != nil {
				logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).Msg("cannot mark order FAILED")
			} else {
				logger.Ctx(ctx).Warn().Str("order_id", orderID).Int("retries", order.RetryCount).
					Msg("order failed permanently after exhausting retries")
			}
		}
		if err := s.orderRepo.UpdateWithVersion(ctx, order); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("order_id", orderID).
				Msg("CRITICAL: failed to persist order after compensation")
		}

		sagaOutcomesTotal.WithLabelValues(outcomeLabel(order.Status)).Inc()
		s.publish(ctx, domain.EventStatusChanged(orderID, domain.StatusPending, order.Status, procErr.Error()))
		return procErr
	}

	sagaOutcomesTotal.WithLabelValues("confirmed").Inc()
	logger.Ctx(ctx).Info().Str("order_id", orderID).Float64("total", order.TotalAmount).
		Msg("order confirmed, all items reserved")
	s.publish(ctx, domain.EventStatusChanged(orderID, domain.StatusPending, domain.StatusConfirmed, ""))
	return nil
}

// reserveAll 按行项目的列表顺序逐个预占，把成功的行追加进 reserved。
// 第一处失败立即返回：后面的行不再尝试，已占的行等调用方补偿。
func (s *OrderApplicationService) reserveAll(ctx context.Context, order *domain.Order, reserved *[]*domain.OrderItem) error {
	for _, item := range order.Items {
		info, err := s.inventory.GetProduct(ctx, item.ProductSKU)
		if err != nil {
			return err
		}
		item.SetPricing(info.Name, info.Price)

		if err := s.inventory.Reserve(ctx, item.ProductSKU, item.Quantity, order.ID); err != nil {
			return err
		}
		*reserved = append(*reserved, item)
		logger.Ctx(ctx).Info().Str("order_id", order.ID).Str("sku", item.ProductSKU).
			Int("quantity", item.Quantity).Msg("item reserved")
	}
	return nil
}

// compensate 释放本轮已预占的每一行。单行释放失败只记日志，
// 其余补偿必须继续：补偿是尽力而为，但必须全部尝试。
func (s *OrderApplicationService) compensate(ctx context.Context, orderID string, reserved []*domain.OrderItem) {
	if len(reserved) == 0 {
		return
	}
	sagaCompensationsTotal.Inc()
	logger.Ctx(ctx).Info().Str("order_id", orderID).Int("items", len(reserved)).
		Msg("compensating reservations")

	for _, item := range reserved {
		if err := s.inventory.Release(ctx, item.ProductSKU, item.Quantity, orderID); err != nil {
			logger.Ctx(ctx).Error().Err(err).
				Str("order_id", orderID).Str("sku", item.ProductSKU).Int("quantity", item.Quantity).
				Msg("failed to release reservation during compensation")
		}
	}
}

func outcomeLabel(status domain.Status) string {
	if status == domain.StatusFailed {
		return "failed"
	}
	return "retry_pending"
}
