// internal/lock/lock.go
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/redisx"
)

// ErrNotAcquired 表示锁被其他持有者占用。这不是故障，
// 调用方应把它翻译成"稍后重试"而不是错误。
var ErrNotAcquired = errors.New("lock: not acquired")

// ErrLockLost 表示续期或释放时发现锁已不属于自己（TTL 自然过期被他人抢占）。
// 持有者收到该错误后必须中止临界区，不能继续假设互斥。
var ErrLockLost = errors.New("lock: lease lost")

// Manager 获取短 TTL 互斥锁。锁是建议性的：
// 只约束本系统内的并发进程，不阻止绕过系统直接改库。
type Manager interface {
	// Acquire 立即返回，不排队等待。抢不到返回 ErrNotAcquired。
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease 是一次成功获取的锁。
type Lease interface {
	// Release 释放锁。锁已丢失时返回 ErrLockLost。
	Release(ctx context.Context) error
	// Extend 续期。失败意味着"锁可能已丢失"，调用方应中止。
	Extend(ctx context.Context, ttl time.Duration) error
	// KeepAlive 每 ttl/2 自动续期，直到 ctx 结束。返回的 channel
	// 在锁丢失时关闭，长临界区应当监听它。
	KeepAlive(ctx context.Context, ttl time.Duration) <-chan struct{}
}

const (
	releaseScriptName = "lock_release"
	extendScriptName  = "lock_extend"
)

// 释放和续期都必须校验 token，防止删掉别人抢到的锁。
var releaseScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

var extendScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('pexpire', KEYS[1], ARGV[2])
end
return 0
`

// RedisManager 基于 Redis SET NX PX 的锁实现。
// 加锁是单条原子命令，两个并发请求者不可能同时成功。
type RedisManager struct {
	client *redisx.Client
}

func NewRedisManager(client *redisx.Client) (*RedisManager, error) {
	if err := client.LoadScriptFromContent(releaseScriptName, releaseScript); err != nil {
		return nil, err
	}
	if err := client.LoadScriptFromContent(extendScriptName, extendScript); err != nil {
		return nil, err
	}
	return &RedisManager{client: client}, nil
}

func (m *RedisManager) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	ok, err := m.client.GetClient().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &redisLease{client: m.client, key: key, token: token}, nil
}

type redisLease struct {
	client *redisx.Client
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	res, err := l.client.RunScript(ctx, releaseScriptName, []string{l.key}, l.token)
	if err != nil {
		return err
	}
	if n, _ := res.(int64); n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := l.client.RunScript(ctx, extendScriptName, []string{l.key}, l.token, ttl.Milliseconds())
	if err != nil {
		return err
	}
	if n, _ := res.(int64); n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLease) KeepAlive(ctx context.Context, ttl time.Duration) <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Extend(ctx, ttl); err != nil {
					logger.Ctx(ctx).Printf("WARN: lock %s keepalive failed: %v", l.key, err)
					close(lost)
					return
				}
			}
		}
	}()
	return lost
}
