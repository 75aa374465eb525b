// internal/service/inventory/infrastructure/zk_locker.go
package infrastructure

import (
	"context"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/zookeeper"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

// ZookeeperLocker 是 SKULocker 的 ZooKeeper 实现。
// 临时顺序节点天然具备持有者会话失效后自动释放的能力，
// 适合需要严格公平排队的多实例部署。
type ZookeeperLocker struct {
	conn *zk.Conn
}

// NewZookeeperLocker 建立 ZooKeeper 会话。
func NewZookeeperLocker(servers []string) (*ZookeeperLocker, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "connect to zookeeper")
	}
	return &ZookeeperLocker{conn: conn}, nil
}

func (l *ZookeeperLocker) Acquire(ctx context.Context, productID string, wait time.Duration) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "create zk lock for %s", productID)
	}
	if err := lock.Lock(wait); err != nil {
		if errors.Is(err, zookeeper.ErrLockTimeout) {
			return nil, errors.Wrapf(domain.ErrSKUBusy, "zk lock wait exceeded %v for %s", wait, productID)
		}
		return nil, errors.Wrapf(err, "acquire zk lock for %s", productID)
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			logger.Logger().Warn().Err(err).Str("product_id", productID).Msg("failed to release zk sku lock")
		}
	}, nil
}

// Close 关闭 ZooKeeper 会话，所有未释放的临时节点随会话消失。
func (l *ZookeeperLocker) Close() {
	l.conn.Close()
}
