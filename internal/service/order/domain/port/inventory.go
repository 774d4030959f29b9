package port

import (
	"context"
	"time"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/inventory"
)

// InventoryEngine 是库存预占引擎的出站端口。
// 应用层只关心预占/确认/释放三个动作, 缓存与台账的协同由实现封装。
type InventoryEngine interface {
	// Reserve 为订单预占库存。返回 (false, nil) 表示库存不足, 不是系统错误。
	Reserve(ctx context.Context, skuID uint64, qty int, orderNo string, ttl time.Duration) (bool, error)
	// ConfirmOrder 支付成功后将整单预占转为实际扣减, 返回本次真正扣减的
	// SKU。已确认过的行不在其中, 对同一订单重放是幂等的。
	ConfirmOrder(ctx context.Context, orderNo string, lines []inventory.Line) ([]uint64, error)
	// ReleaseOrder 取消订单后归还整单预占, 对同一订单重放是幂等的。
	ReleaseOrder(ctx context.Context, orderNo string, lines []inventory.Line) error
	// Available 当前可售库存, 用于下单前的快速校验。
	Available(ctx context.Context, skuID uint64) (int, error)
}
