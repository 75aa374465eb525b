// internal/service/inventory/infrastructure/redis_locker.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/redis"
	"stockledger/internal/service/inventory/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	unlockScriptName = "sku_unlock"
	lockKeyPattern   = "skulock:{%s}"
	// 锁本身带 TTL，持有者崩溃后锁自动过期，不会永久卡死该 SKU
	lockTTL       = 10 * time.Second
	lockRetryStep = 50 * time.Millisecond
)

// 只有持有者（token 匹配）才能删除锁，避免误删别人刚拿到的锁
var unlockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
else
    return 0
end
`

// RedisLocker 是 SKULocker 的 Redis 实现：SET NX PX 抢锁，Lua 校验释放。
// 适合多实例部署下的 SKU 串行化。
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker 创建 Redis 锁实现，解锁脚本在初始化时注册。
func NewRedisLocker(client *redis.Client) (*RedisLocker, error) {
	if err := client.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, fmt.Errorf("failed to load unlock script: %w", err)
	}
	return &RedisLocker{client: client}, nil
}

// Acquire 带抖动地重试 SET NX，直到拿到锁或预算耗尽。
func (l *RedisLocker) Acquire(ctx context.Context, productID string, wait time.Duration) (func(), error) {
	key := fmt.Sprintf(lockKeyPattern, productID)
	token := uuid.New().String()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.GetClient().SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "redis lock attempt for %s", productID)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if time.Now().Add(lockRetryStep).After(deadline) {
			return nil, errors.Wrapf(domain.ErrSKUBusy, "redis lock wait exceeded %v for %s", wait, productID)
		}
		select {
		case <-time.After(lockRetryStep):
		case <-ctx.Done():
			return nil, errors.Wrapf(domain.ErrSKUBusy, "context cancelled while waiting for %s", productID)
		}
	}
}

func (l *RedisLocker) release(key, token string) {
	// 释放不依赖调用方的 ctx：它可能已经取消了
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := l.client.RunScript(ctx, unlockScriptName, []string{key}, token); err != nil {
		logger.Logger().Warn().Err(err).Str("key", key).Msg("failed to release redis sku lock")
	}
}
