// internal/service/inventory/ports.go
package inventory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSkuNotFound       = errors.New("inventory: sku not found")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// ReserveOutcome 是缓存侧原子预占的结果。
type ReserveOutcome int8

const (
	ReserveOK           ReserveOutcome = iota // 扣减成功，预占标记已写入
	ReserveInsufficient                       // 余量不足，未做任何修改
	ReserveMiss                               // 缓存无此 SKU，需要从账本懒加载
)

// StockCache 是库存的快速镜像。检查与扣减必须是同一个原子操作，
// 否则两个并发调用可以同时通过检查而联合超卖。
type StockCache interface {
	// ReserveIfEnough 原子执行"够则扣减并写预占标记，不够则不动"。
	ReserveIfEnough(ctx context.Context, skuID uint64, qty int, orderNo string, ttl time.Duration) (ReserveOutcome, error)
	// CancelReserve 回滚一次预占：删标记并把数量加回。标记已不存在则是 no-op。
	CancelReserve(ctx context.Context, skuID uint64, qty int, orderNo string) (bool, error)
	// DropReservation 仅移除预占标记（confirm 路径：库存已真实扣减，缓存不回补）。
	DropReservation(ctx context.Context, skuID uint64, orderNo string) error
	// HasReservation 检查预占标记是否仍然存在。
	HasReservation(ctx context.Context, skuID uint64, orderNo string) (bool, error)

	GetStock(ctx context.Context, skuID uint64) (qty int, ok bool, err error)
	SetStock(ctx context.Context, skuID uint64, qty int) error
	// InitStock 仅在缓存无此 SKU 时写入（SET NX），懒加载竞态下先写者生效。
	InitStock(ctx context.Context, skuID uint64, qty int) error
}

// StockLedger 是账本的持久化端口，所有方法内部必须是单事务。
type StockLedger interface {
	GetSku(ctx context.Context, skuID uint64) (*SkuStock, error)
	// ListSkus 按 sku_id 升序分页遍历，游标就是上一页最后一行的 sku_id，
	// 供审计任务使用。
	ListSkus(ctx context.Context, afterSkuID uint64, limit int) ([]SkuStock, error)

	// LockStock 预占：locked_stock += qty，守卫 locked_stock+qty <= stock。
	LockStock(ctx context.Context, skuID uint64, qty int, orderNo string) error
	// ApplyBatch 按 SKU 归并变更，单 SKU 单事务落账。
	// stock-out 变更将 stock 与 locked_stock 同时 -= qty；
	// order-release 变更将 locked_stock -= qty，不足时按零截断并留审计流水。
	ApplyBatch(ctx context.Context, muts []Mutation) error

	// HasChange 查询某订单对某 SKU 是否已存在指定类型的流水，
	// 作为 confirm/release 跨进程重试的幂等守卫。
	HasChange(ctx context.Context, skuID uint64, orderNo string, types ...StockChangeType) (bool, error)
	// AuditAdjust 记录一条审计修正流水（缓存被重置为账本值时）。
	AuditAdjust(ctx context.Context, skuID uint64, cacheQty, ledgerQty int, remark string) error
}
