// internal/zookeeper/lock.go
package zookeeper

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/stockledger_locks" // 所有 SKU 锁的根节点

// ErrLockTimeout 表示在等待预算内没有拿到锁。
var ErrLockTimeout = errors.New("timeout waiting for zookeeper lock")

// DistributedLock 是基于临时顺序节点的分布式锁。
// 同一个 resourceID（SKU）下序号最小的节点持有锁，其余节点只监听前驱，避免惊群。
type DistributedLock struct {
	conn     *zk.Conn
	path     string // 锁的父路径，例如 /stockledger_locks/sku-123
	lockNode string // 获取锁后自己创建的节点路径
}

// NewDistributedLock 创建一个锁实例并确保父节点存在。
func NewDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	for _, p := range []string{lockRoot, lockRoot + "/" + resourceID} {
		exists, _, err := conn.Exists(p)
		if err != nil {
			return nil, fmt.Errorf("failed to check lock path %s: %w", p, err)
		}
		if !exists {
			if _, err := conn.Create(p, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
				return nil, fmt.Errorf("failed to create lock path %s: %w", p, err)
			}
		}
	}
	return &DistributedLock{conn: conn, path: lockRoot + "/" + resourceID}, nil
}

// Lock 在 wait 预算内尝试获取锁，超出预算返回 ErrLockTimeout。
// 超时退出前会删除自己创建的节点，不会把僵尸节点留在队列里。
func (l *DistributedLock) Lock(wait time.Duration) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte{}, zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	deadline := time.Now().Add(wait)

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return fmt.Errorf("failed to list lock children: %w", err)
		}
		sort.Strings(children)

		myNode := strings.TrimPrefix(l.lockNode, l.path+"/")
		if len(children) > 0 && myNode == children[0] {
			return nil // 序号最小，锁到手
		}

		prevIndex := -1
		for i, child := range children {
			if child == myNode {
				prevIndex = i - 1
				break
			}
		}
		if prevIndex < 0 {
			l.abandon()
			return errors.New("own lock node missing from children list")
		}

		// 只监听前驱节点的删除事件
		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + children[prevIndex])
		if err != nil {
			if err == zk.ErrNoNode {
				continue
			}
			l.abandon()
			return fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.abandon()
			return ErrLockTimeout
		}
		select {
		case event := <-eventChan:
			if event.Type == zk.EventNodeDeleted {
				continue
			}
		case <-time.After(remaining):
			l.abandon()
			return ErrLockTimeout
		}
	}
}

// Unlock 释放锁。
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}
