// internal/service/inventory/cache.go
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/redisx"
)

const (
	stockKeyFmt   = "stock:cache:%d"      // 可售数量镜像
	reserveKeyFmt = "stock:reserve:%d:%s" // 预占标记 (skuID, orderNo)

	reserveScriptName = "stock_reserve"
	cancelScriptName  = "stock_cancel_reserve"

	// 镜像自带 TTL，过期后由下一次预占懒加载，避免陈旧值永驻
	stockCacheTTL = 24 * time.Hour
)

// 检查与扣减在同一脚本内完成。返回值:
//
//	>=0 扣减后的余量；-1 余量不足；-2 缓存无此 SKU
var reserveScript = `
local stock = redis.call('get', KEYS[1])
if not stock then
    return -2
end
if tonumber(stock) < tonumber(ARGV[1]) then
    return -1
end
redis.call('decrby', KEYS[1], ARGV[1])
redis.call('set', KEYS[2], ARGV[1], 'px', ARGV[2])
return tonumber(stock) - tonumber(ARGV[1])
`

// 回滚预占：标记存在才回补数量，保证回滚不会重复执行。
var cancelReserveScript = `
if redis.call('del', KEYS[2]) == 1 then
    if redis.call('exists', KEYS[1]) == 1 then
        redis.call('incrby', KEYS[1], ARGV[1])
    end
    return 1
end
return 0
`

// RedisStockCache 是 StockCache 的 Redis 实现。
type RedisStockCache struct {
	client *redisx.Client
}

func NewRedisStockCache(client *redisx.Client) (*RedisStockCache, error) {
	if err := client.LoadScriptFromContent(reserveScriptName, reserveScript); err != nil {
		return nil, fmt.Errorf("failed to load reserve script: %w", err)
	}
	if err := client.LoadScriptFromContent(cancelScriptName, cancelReserveScript); err != nil {
		return nil, fmt.Errorf("failed to load cancel reserve script: %w", err)
	}
	return &RedisStockCache{client: client}, nil
}

func stockKey(skuID uint64) string            { return fmt.Sprintf(stockKeyFmt, skuID) }
func reserveKey(skuID uint64, no string) string { return fmt.Sprintf(reserveKeyFmt, skuID, no) }

func (c *RedisStockCache) ReserveIfEnough(ctx context.Context, skuID uint64, qty int, orderNo string, ttl time.Duration) (ReserveOutcome, error) {
	keys := []string{stockKey(skuID), reserveKey(skuID, orderNo)}
	res, err := c.client.RunScript(ctx, reserveScriptName, keys, qty, ttl.Milliseconds())
	if err != nil {
		return ReserveInsufficient, err
	}
	code, ok := res.(int64)
	if !ok {
		return ReserveInsufficient, fmt.Errorf("unexpected result type from reserve script: %T", res)
	}
	switch {
	case code >= 0:
		return ReserveOK, nil
	case code == -1:
		return ReserveInsufficient, nil
	default:
		return ReserveMiss, nil
	}
}

func (c *RedisStockCache) CancelReserve(ctx context.Context, skuID uint64, qty int, orderNo string) (bool, error) {
	keys := []string{stockKey(skuID), reserveKey(skuID, orderNo)}
	res, err := c.client.RunScript(ctx, cancelScriptName, keys, qty)
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

func (c *RedisStockCache) DropReservation(ctx context.Context, skuID uint64, orderNo string) error {
	return c.client.GetClient().Del(ctx, reserveKey(skuID, orderNo)).Err()
}

func (c *RedisStockCache) HasReservation(ctx context.Context, skuID uint64, orderNo string) (bool, error) {
	n, err := c.client.GetClient().Exists(ctx, reserveKey(skuID, orderNo)).Result()
	return n > 0, err
}

func (c *RedisStockCache) GetStock(ctx context.Context, skuID uint64) (int, bool, error) {
	qty, err := c.client.GetClient().Get(ctx, stockKey(skuID)).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

func (c *RedisStockCache) SetStock(ctx context.Context, skuID uint64, qty int) error {
	return c.client.GetClient().Set(ctx, stockKey(skuID), qty, stockCacheTTL).Err()
}

func (c *RedisStockCache) InitStock(ctx context.Context, skuID uint64, qty int) error {
	return c.client.GetClient().SetNX(ctx, stockKey(skuID), qty, stockCacheTTL).Err()
}
