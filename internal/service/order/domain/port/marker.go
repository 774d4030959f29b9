package port

import (
	"context"
	"time"
)

// MarkerStore 管理订单相关的短期标记 (幂等记录与到期标记)。
type MarkerStore interface {
	// GetIdempotency 查询幂等键对应的已有订单号, 不存在时 ok=false。
	GetIdempotency(ctx context.Context, key string) (orderID string, ok bool, err error)
	// PutIdempotency 写入幂等键 -> 订单号映射, 带过期时间。
	PutIdempotency(ctx context.Context, key, orderID string, ttl time.Duration) error
	// DeleteIdempotency 删除幂等键, 下单补偿后调用, 让用户可以立即重试。
	DeleteIdempotency(ctx context.Context, key string) error
	// ArmExpire 设置订单的支付到期标记, 标记消失即视为支付窗口关闭。
	ArmExpire(ctx context.Context, orderNo string, window time.Duration) error
	DisarmExpire(ctx context.Context, orderNo string) error
	// ExpireRemaining 查询支付窗口剩余时间, 标记不存在时 ok=false。
	ExpireRemaining(ctx context.Context, orderNo string) (remaining time.Duration, ok bool, err error)
	// ArmAutoComplete 设置发货后自动完成的宽限标记。
	ArmAutoComplete(ctx context.Context, orderNo string, ttl time.Duration) error
}

// DelayScheduler 延迟任务端口: 在截止时间后触发一次支付超时检查。
// 投递是至少一次的, 消费侧必须幂等。
type DelayScheduler interface {
	SchedulePaymentTimeout(ctx context.Context, orderNo string, deadline time.Time) error
	// CancelPaymentTimeout 尽力而为, 取消失败时消费侧的幂等检查兜底。
	CancelPaymentTimeout(ctx context.Context, orderNo string) error
}
