// internal/service/order/infrastructure/marker_redis_adapter.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/redisx"
)

const (
	idempotencyKeyFmt = "order:idem:%s"
	expireMarkerFmt   = "order:expire:%s"
	autoCompleteFmt   = "order:autocomplete:%s"
)

// RedisMarkerStore 以带 TTL 的 Redis 键实现订单标记。
// 到期标记的消失本身就是信号, 不需要清理任务。
type RedisMarkerStore struct {
	rdb *redis.Client
}

func NewRedisMarkerStore(client *redisx.Client) *RedisMarkerStore {
	return &RedisMarkerStore{rdb: client.GetClient()}
}

func (s *RedisMarkerStore) GetIdempotency(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, fmt.Sprintf(idempotencyKeyFmt, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get idempotency marker")
	}
	return val, true, nil
}

func (s *RedisMarkerStore) PutIdempotency(ctx context.Context, key, orderID string, ttl time.Duration) error {
	// NX: 先写入者胜, 并发请求不会互相覆盖
	return errors.Wrap(
		s.rdb.SetNX(ctx, fmt.Sprintf(idempotencyKeyFmt, key), orderID, ttl).Err(),
		"put idempotency marker")
}

func (s *RedisMarkerStore) DeleteIdempotency(ctx context.Context, key string) error {
	return errors.Wrap(
		s.rdb.Del(ctx, fmt.Sprintf(idempotencyKeyFmt, key)).Err(),
		"delete idempotency marker")
}

func (s *RedisMarkerStore) ArmExpire(ctx context.Context, orderNo string, window time.Duration) error {
	return errors.Wrap(
		s.rdb.Set(ctx, fmt.Sprintf(expireMarkerFmt, orderNo), "1", window).Err(),
		"arm expire marker")
}

func (s *RedisMarkerStore) DisarmExpire(ctx context.Context, orderNo string) error {
	return errors.Wrap(
		s.rdb.Del(ctx, fmt.Sprintf(expireMarkerFmt, orderNo)).Err(),
		"disarm expire marker")
}

func (s *RedisMarkerStore) ExpireRemaining(ctx context.Context, orderNo string) (time.Duration, bool, error) {
	d, err := s.rdb.PTTL(ctx, fmt.Sprintf(expireMarkerFmt, orderNo)).Result()
	if err != nil {
		return 0, false, errors.Wrap(err, "query expire marker ttl")
	}
	if d < 0 {
		// -2 键不存在, -1 无过期时间 (不应出现), 都按窗口已关闭处理
		return 0, false, nil
	}
	return d, true, nil
}

func (s *RedisMarkerStore) ArmAutoComplete(ctx context.Context, orderNo string, ttl time.Duration) error {
	return errors.Wrap(
		s.rdb.Set(ctx, fmt.Sprintf(autoCompleteFmt, orderNo), "1", ttl).Err(),
		"arm auto-complete marker")
}
