// internal/service/inventory/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"oms/internal/pkg/mq"
	"oms/internal/service/inventory/domain"
)

// InventoryEventProducer 把库存事件发布到 Kafka。
// 消息以 SKU 为 key，保证同一 SKU 的事件流有序。
type InventoryEventProducer struct {
	writer *kafka.Writer
}

func NewInventoryEventProducer(writer *kafka.Writer) *InventoryEventProducer {
	return &InventoryEventProducer{writer: writer}
}

func (p *InventoryEventProducer) Publish(ctx context.Context, event *domain.InventoryEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return mq.ProduceMessage(ctx, p.writer, []byte(event.SKU), payload)
}
