// internal/service/order/interfaces/order_event_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"oms/internal/pkg/apperr"
	"oms/internal/pkg/logger"
	"oms/internal/pkg/mq"
	"oms/internal/service/order/application"
	"oms/internal/service/order/domain"
	"oms/internal/service/order/port"
)

// 已处理事件的去重标记保留时长。超过这个窗口的重复投递极其罕见，
// 即便发生也会被 ProcessOrder 的状态检查兜住。
const processedEventTTL = 24 * time.Hour

// OrderEventConsumer 监听订单事件主题，驱动 Saga 处理新订单。
// at-least-once 投递下用事件ID去重：抢到标记才处理，处理失败释放标记，
// 保证同一事件最多被成功处理一次。
//
// 失败分两类：可重试的（依赖不可用、库存不足、版本冲突）把事件重新发回
// 主题，让下一次投递再跑一轮 Saga，直到重试上限把订单置为 FAILED；
// 不可重试的（解析失败、订单不存在）移交 DLT。
type OrderEventConsumer struct {
	reader            *kafka.Reader
	appSvc            *application.OrderApplicationService
	processedStore    port.ProcessedEventStore
	events            port.OrderEventProducer
	failureHandler    *mq.FailureHandler
	processingTimeout time.Duration

	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewOrderEventConsumer(reader *kafka.Reader, appSvc *application.OrderApplicationService, processedStore port.ProcessedEventStore, events port.OrderEventProducer, failureHandler *mq.FailureHandler, processingTimeout time.Duration) *OrderEventConsumer {
	return &OrderEventConsumer{
		reader:            reader,
		appSvc:            appSvc,
		processedStore:    processedStore,
		events:            events,
		failureHandler:    failureHandler,
		processingTimeout: processingTimeout,
	}
}

// Start 启动消费循环。这是一个长期运行的方法。
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("✅ Order event consumer started.")
		for {
			if c.stopped.Load() {
				return
			}
			// 用 FetchMessage 而非 ReadMessage，手动控制提交时机
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Order event consumer shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
				time.Sleep(1 * time.Second)
				continue
			}

			headerCarrier := mq.KafkaHeaderCarrier(msg.Headers)
			msgCtx := otel.GetTextMapPropagator().Extract(ctx, &headerCarrier)

			if err := c.processMessage(msgCtx, msg); err != nil {
				// 只有不可重试的毒消息才移交 DLT，消费循环不能卡死在它上面
				c.failureHandler.Handle(msgCtx, msg, err)
			}

			// 成功、已重新入队或已移交，都提交 offset
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (c *OrderEventConsumer) Stop(ctx context.Context) {
	c.stopped.Store(true)
	c.reader.Close()
	c.wg.Wait()
	logger.Ctx(ctx).Info().Str("topic", c.reader.Config().Topic).Msg("✅ Order event consumer stopped.")
}

func (c *OrderEventConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	// 状态变更事件只为下游订阅方（监控、通知）发布，本服务不消费
	if event.EventType != domain.EventTypeCreated {
		return nil
	}

	claimed, err := c.processedStore.Claim(ctx, event.EventID, processedEventTTL)
	if err != nil {
		return err
	}
	if !claimed {
		logger.Ctx(ctx).Info().Str("event_id", event.EventID).Str("order_id", event.OrderID).
			Msg("duplicate event delivery, skipping")
		return nil
	}

	// 单个订单的 Saga 整体限时，防止一条消息把消费循环拖死
	processingCtx, cancel := context.WithTimeout(ctx, c.processingTimeout)
	defer cancel()

	if err := c.appSvc.ProcessOrder(processingCtx, event.OrderID); err != nil {
		// 释放标记，让重新入队的事件可以再次被处理
		if relErr := c.processedStore.Release(ctx, event.EventID); relErr != nil {
			logger.Ctx(ctx).Error().Err(relErr).Str("event_id", event.EventID).
				Msg("failed to release processed-event claim")
		}
		if apperr.IsRetryable(err) {
			return c.requeue(ctx, &event, err)
		}
		return err
	}
	return nil
}

// requeue 把事件重新发回主题，驱动下一轮处理。ProcessOrder 已经把
// 重试计数落了库，重试上限由订单自身的状态兜住，不会无限循环：
// 到达上限的订单变为 FAILED，后续投递是 no-op。
// 重新入队本身失败时按不可重试处理，上抛给 DLT，避免订单凭空消失。
func (c *OrderEventConsumer) requeue(ctx context.Context, event *domain.OrderEvent, cause error) error {
	if err := c.events.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("event_id", event.EventID).Str("order_id", event.OrderID).
			Msg("failed to requeue order event")
		return err
	}
	logger.Ctx(ctx).Warn().Err(cause).Str("event_id", event.EventID).Str("order_id", event.OrderID).
		Msg("retryable failure, order event requeued")
	return nil
}
