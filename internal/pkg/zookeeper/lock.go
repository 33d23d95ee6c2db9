// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/oms/inventory_locks" // 所有行级互斥锁的根节点

// ErrLockWaitTimeout 表示在限定时间内没有等到锁。
// 调用方应把它当作可重试的瞬态失败，而不是死等。
var ErrLockWaitTimeout = errors.New("timeout waiting for lock")

// DistributedLock 是经典的 ZooKeeper 临时顺序节点锁。
// 粒度是单个资源（这里是 SKU）：同一 SKU 的并发修改被串行化，
// 不同 SKU 之间互不影响。
type DistributedLock struct {
	conn     *Conn
	path     string // 锁的父路径，例如 /oms/inventory_locks/SKU-001
	lockNode string // 成功排队后自己创建的节点路径
}

// NewDistributedLock 为一个资源创建锁实例。
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	if err := conn.EnsurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// Lock 尝试获取锁，最多等待 maxWait。等待超时返回 ErrLockWaitTimeout，
// 并清理掉自己排队用的节点，避免死队列。
func (l *DistributedLock) Lock(maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)

	// 1. 创建临时顺序节点排队
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "failed to create sequential lock node")
	}
	l.lockNode = nodePath

	for {
		// 2. 列出所有排队者，判断自己是否排在最前
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "failed to list lock children")
		}
		sort.Strings(children)

		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		if myNodeName == children[0] {
			return nil
		}

		// 3. 监听前一个节点，它消失时再回来竞争
		prevIndex := -1
		for i, child := range children {
			if child == myNodeName {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			l.abandon()
			return errors.New("lock node missing from queue")
		}
		prevNodePath := l.path + "/" + children[prevIndex]

		exists, _, eventChan, err := l.conn.ExistsW(prevNodePath)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "failed to watch previous lock node")
		}
		if !exists {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.abandon()
			return ErrLockWaitTimeout
		}

		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			l.abandon()
			return ErrLockWaitTimeout
		}
	}
}

// Unlock 释放锁。节点已经不存在（例如会话过期）不算错误。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	l.lockNode = ""
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "failed to delete lock node")
	}
	return nil
}

// abandon 清理排队节点，放弃本次竞争。
func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}
