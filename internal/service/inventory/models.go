// internal/service/inventory/models.go
package inventory

import "time"

// StockChangeType 标记每条库存流水的变更原因。
type StockChangeType int8

const (
	ChangeStockIn      StockChangeType = 1 // 入库
	ChangeStockOut     StockChangeType = 2 // 支付确认后的真实扣减
	ChangeOrderLock    StockChangeType = 3 // 下单预占
	ChangeOrderRelease StockChangeType = 4 // 取消/超时释放预占
	ChangeAuditAdjust  StockChangeType = 5 // 审计修正
	ChangeManual       StockChangeType = 6 // 人工调整
)

// NonOrderNo 是非订单引起的库存变更在流水中使用的哨兵订单号。
const NonOrderNo = "-"

// SkuStock 是每个 SKU 库存的账本记录，唯一的事实来源。
// 不变式：stock >= 0 且 0 <= locked_stock <= stock。
type SkuStock struct {
	ID          uint64 `gorm:"primaryKey"`
	SkuID       uint64 `gorm:"uniqueIndex;not null"`
	ProductID   uint64 `gorm:"index;not null"`
	Stock       int    `gorm:"not null;default:0"`
	LockedStock int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (SkuStock) TableName() string { return "sku_stocks" }

// Available 返回面向顾客的可售数量。
func (s *SkuStock) Available() int { return s.Stock - s.LockedStock }

// StockLog 是只追加的库存流水。每次账本变更都配对一条流水，
// 记录带符号的变更量和变更后的快照，是重建库存历史的唯一依据。
type StockLog struct {
	ID          uint64          `gorm:"primaryKey"`
	SkuID       uint64          `gorm:"index:idx_stock_logs_sku_order;not null"`
	ChangeQty   int             `gorm:"not null"` // 带符号，相对可用库存的变化
	StockAfter  int             `gorm:"not null"` // 变更后 stock 快照
	LockedAfter int             `gorm:"not null"` // 变更后 locked_stock 快照
	Type        StockChangeType `gorm:"index;not null"`
	OrderNo     string          `gorm:"size:64;index:idx_stock_logs_sku_order;not null"`
	Remark      string          `gorm:"size:255"`
	Operator    string          `gorm:"size:64"`
	CreatedAt   time.Time
}

func (StockLog) TableName() string { return "stock_logs" }

// Mutation 是批量库存变更的一项，BatchApply 会按 SKU 归并后在单事务内落账。
type Mutation struct {
	SkuID   uint64
	Qty     int
	Type    StockChangeType
	OrderNo string
}

// Line 是订单内某个 SKU 的预占数量，批量确认/释放的输入。
type Line struct {
	SkuID uint64
	Qty   int
}
