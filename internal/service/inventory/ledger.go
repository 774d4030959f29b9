// internal/service/inventory/ledger.go
package inventory

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
)

const ledgerOperator = "system"

// GormLedger 是 StockLedger 的 MySQL 实现。
// 每个写方法都是一个事务：SKU 行更新与流水插入要么全部提交要么全部回滚。
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) *GormLedger { return &GormLedger{db: db} }

// AutoMigrate 建表，仅在开发/测试环境由组装根调用。
func (l *GormLedger) AutoMigrate() error {
	return l.db.AutoMigrate(&SkuStock{}, &StockLog{})
}

func (l *GormLedger) GetSku(ctx context.Context, skuID uint64) (*SkuStock, error) {
	var sku SkuStock
	err := l.db.WithContext(ctx).Where("sku_id = ?", skuID).First(&sku).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrSkuNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "ledger: get sku")
	}
	return &sku, nil
}

// ListSkus 按 sku_id 升序分页, 游标列与审计任务推进游标用的列一致。
func (l *GormLedger) ListSkus(ctx context.Context, afterSkuID uint64, limit int) ([]SkuStock, error) {
	var skus []SkuStock
	err := l.db.WithContext(ctx).
		Where("sku_id > ?", afterSkuID).
		Order("sku_id asc").
		Limit(limit).
		Find(&skus).Error
	return skus, pkgerrors.Wrap(err, "ledger: list skus")
}

func (l *GormLedger) LockStock(ctx context.Context, skuID uint64, qty int, orderNo string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.lockInTx(tx, skuID, qty, orderNo)
	})
}

// ApplyBatch 按 SKU 归并后落账，支付确认扇出和兜底扫描用它
// 避免一单一品一事务的开销。
func (l *GormLedger) ApplyBatch(ctx context.Context, muts []Mutation) error {
	bySku := make(map[uint64][]Mutation)
	for _, m := range muts {
		bySku[m.SkuID] = append(bySku[m.SkuID], m)
	}
	for skuID, group := range bySku {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, m := range group {
				var err error
				switch m.Type {
				case ChangeStockOut:
					err = l.confirmInTx(tx, m.SkuID, m.Qty, m.OrderNo)
				case ChangeOrderRelease:
					err = l.releaseInTx(ctx, tx, m.SkuID, m.Qty, m.OrderNo)
				case ChangeOrderLock:
					err = l.lockInTx(tx, m.SkuID, m.Qty, m.OrderNo)
				default:
					err = pkgerrors.Errorf("ledger: unsupported batch mutation type %d", m.Type)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return pkgerrors.Wrapf(err, "ledger: batch apply for sku %d", skuID)
		}
	}
	return nil
}

func (l *GormLedger) HasChange(ctx context.Context, skuID uint64, orderNo string, types ...StockChangeType) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&StockLog{}).
		Where("sku_id = ? AND order_no = ? AND type IN ?", skuID, orderNo, types).
		Count(&n).Error
	return n > 0, pkgerrors.Wrap(err, "ledger: has change")
}

func (l *GormLedger) AuditAdjust(ctx context.Context, skuID uint64, cacheQty, ledgerQty int, remark string) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.appendLog(tx, skuID, ledgerQty-cacheQty, ChangeAuditAdjust, NonOrderNo, remark)
	})
}

// lockInTx 预占库存。守卫条件写在 UPDATE 的 WHERE 里，
// 并发时由数据库行锁串行化，绝不会出现 locked_stock > stock。
func (l *GormLedger) lockInTx(tx *gorm.DB, skuID uint64, qty int, orderNo string) error {
	res := tx.Model(&SkuStock{}).
		Where("sku_id = ? AND locked_stock + ? <= stock", skuID, qty).
		Update("locked_stock", gorm.Expr("locked_stock + ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "ledger: lock stock")
	}
	if res.RowsAffected == 0 {
		// 区分"不存在"与"余量不足"
		var n int64
		if err := tx.Model(&SkuStock{}).Where("sku_id = ?", skuID).Count(&n).Error; err != nil {
			return pkgerrors.Wrap(err, "ledger: lock stock recheck")
		}
		if n == 0 {
			return ErrSkuNotFound
		}
		return ErrInsufficientStock
	}
	return l.appendLog(tx, skuID, -qty, ChangeOrderLock, orderNo, "order lock")
}

// confirmInTx 支付确认后把预占转成真实扣减。
func (l *GormLedger) confirmInTx(tx *gorm.DB, skuID uint64, qty int, orderNo string) error {
	res := tx.Model(&SkuStock{}).
		Where("sku_id = ? AND stock >= ? AND locked_stock >= ?", skuID, qty, qty).
		Updates(map[string]interface{}{
			"stock":        gorm.Expr("stock - ?", qty),
			"locked_stock": gorm.Expr("locked_stock - ?", qty),
		})
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "ledger: confirm stock")
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return l.appendLog(tx, skuID, -qty, ChangeStockOut, orderNo, "payment confirmed")
}

// releaseInTx 释放预占。locked_stock 不足以扣 qty 时按零截断，
// 但截断绝不静默：额外落一条审计流水，让审计任务之外也有记录可查。
func (l *GormLedger) releaseInTx(ctx context.Context, tx *gorm.DB, skuID uint64, qty int, orderNo string) error {
	var sku SkuStock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku_id = ?", skuID).First(&sku).Error
	if err == gorm.ErrRecordNotFound {
		return ErrSkuNotFound
	}
	if err != nil {
		return pkgerrors.Wrap(err, "ledger: release stock")
	}

	release := qty
	if sku.LockedStock < qty {
		release = sku.LockedStock
		logger.Ctx(ctx).Error().
			Uint64("sku_id", skuID).
			Str("order_no", orderNo).
			Int("requested", qty).
			Int("locked", sku.LockedStock).
			Msg("release exceeds locked stock, clamped")
		if err := l.appendLog(tx, skuID, 0, ChangeAuditAdjust, orderNo,
			"invariant violation: release exceeds locked_stock"); err != nil {
			return err
		}
	}
	if err := tx.Model(&SkuStock{}).Where("sku_id = ?", skuID).
		Update("locked_stock", gorm.Expr("locked_stock - ?", release)).Error; err != nil {
		return pkgerrors.Wrap(err, "ledger: release stock update")
	}
	return l.appendLog(tx, skuID, release, ChangeOrderRelease, orderNo, "order release")
}

// appendLog 在当前事务内插入一条流水，快照取自更新后的 SKU 行。
func (l *GormLedger) appendLog(tx *gorm.DB, skuID uint64, delta int, typ StockChangeType, orderNo, remark string) error {
	var sku SkuStock
	if err := tx.Where("sku_id = ?", skuID).First(&sku).Error; err != nil {
		return pkgerrors.Wrap(err, "ledger: snapshot for log")
	}
	entry := StockLog{
		SkuID:       skuID,
		ChangeQty:   delta,
		StockAfter:  sku.Stock,
		LockedAfter: sku.LockedStock,
		Type:        typ,
		OrderNo:     orderNo,
		Remark:      remark,
		Operator:    ledgerOperator,
	}
	return pkgerrors.Wrap(tx.Create(&entry).Error, "ledger: append log")
}
