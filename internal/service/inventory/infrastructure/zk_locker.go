// internal/service/inventory/infrastructure/zk_locker.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"oms/internal/pkg/apperr"
	"oms/internal/pkg/logger"
	"oms/internal/pkg/zookeeper"
)

// ZkStockLocker 用 ZooKeeper 临时顺序节点实现 SKU 行级互斥。
// 等待有上界：超时映射为可重试的 CONCURRENT_MODIFICATION，而不是死等。
type ZkStockLocker struct {
	conn    *zookeeper.Conn
	maxWait time.Duration
}

func NewZkStockLocker(conn *zookeeper.Conn, maxWait time.Duration) *ZkStockLocker {
	return &ZkStockLocker{conn: conn, maxWait: maxWait}
}

func (l *ZkStockLocker) Acquire(ctx context.Context, sku string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, sku)
	if err != nil {
		return nil, err
	}

	if err := lock.Lock(l.maxWait); err != nil {
		if errors.Is(err, zookeeper.ErrLockWaitTimeout) {
			return nil, apperr.ConcurrentModification("product", sku)
		}
		return nil, err
	}

	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("sku", sku).Msg("failed to release sku lock")
		}
	}, nil
}
