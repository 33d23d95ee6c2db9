package port

import (
	"context"
	"time"

	"oms/internal/service/order/domain"
)

// OrderEventProducer 是订单事件的出站端口。
type OrderEventProducer interface {
	Publish(ctx context.Context, event *domain.OrderEvent) error
}

// ProcessedEventStore 记录已处理的事件ID，抵御 at-least-once 的重复投递。
type ProcessedEventStore interface {
	// Claim 抢占事件ID。返回 false 表示该事件已被处理过（或正在处理）。
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// Release 释放抢占，让处理失败的事件可以被重投递重新执行。
	Release(ctx context.Context, eventID string) error
}
