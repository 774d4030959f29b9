// internal/service/inventory/engine.go
package inventory

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/metrics"
)

// Engine 把缓存与账本组合成 reserve / confirm / release 三类操作。
// 缓存扣减走快路径，账本事务给出硬一致性边界；两者间的漂移由审计任务自愈。
//
// 预占以 (skuID, orderNo) 为键，确认与释放按订单整批进行。业务性失败
//（SKU 不存在、余量不足、账本状态不符）通过返回值而不是 error 表达，
// 调用方据此决定是否补偿同单的兄弟预占；error 只用于基础设施故障。
type Engine struct {
	cache  StockCache
	ledger StockLedger
	tracer trace.Tracer
}

func NewEngine(cache StockCache, ledger StockLedger, tracer trace.Tracer) *Engine {
	return &Engine{cache: cache, ledger: ledger, tracer: tracer}
}

// Reserve 预占库存：缓存侧原子"检查并扣减"，成功后在账本记 locked_stock。
// 账本写入失败时回滚缓存扣减并删除预占标记，预占对外是全有或全无的。
func (e *Engine) Reserve(ctx context.Context, skuID uint64, qty int, orderNo string, ttl time.Duration) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.Int64("sku.id", int64(skuID)),
		attribute.Int("qty", qty),
		attribute.String("order.no", orderNo),
	))
	defer span.End()

	if qty <= 0 {
		return false, nil
	}

	outcome, err := e.cache.ReserveIfEnough(ctx, skuID, qty, orderNo, ttl)
	if err != nil {
		span.RecordError(err)
		metrics.ReserveAttempts.WithLabelValues("error").Inc()
		return false, err
	}

	if outcome == ReserveMiss {
		// 缓存懒加载：账本是权威，取 stock - locked_stock 作为可售数量
		if ok, err := e.warmCache(ctx, skuID); err != nil || !ok {
			if err != nil {
				metrics.ReserveAttempts.WithLabelValues("error").Inc()
			} else {
				metrics.ReserveAttempts.WithLabelValues("insufficient").Inc()
			}
			return false, err
		}
		outcome, err = e.cache.ReserveIfEnough(ctx, skuID, qty, orderNo, ttl)
		if err != nil {
			span.RecordError(err)
			metrics.ReserveAttempts.WithLabelValues("error").Inc()
			return false, err
		}
	}

	if outcome != ReserveOK {
		span.AddEvent("cache rejected reservation")
		metrics.ReserveAttempts.WithLabelValues("insufficient").Inc()
		return false, nil
	}

	// 账本落 locked_stock；失败则回滚缓存，预占全有或全无
	if err := e.ledger.LockStock(ctx, skuID, qty, orderNo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger lock failed, rolling back cache")
		if _, rbErr := e.cache.CancelReserve(ctx, skuID, qty, orderNo); rbErr != nil {
			// 回滚失败会造成缓存偏低（少卖方向），审计任务会纠正
			logger.Ctx(ctx).Error().Err(rbErr).
				Uint64("sku_id", skuID).Str("order_no", orderNo).
				Msg("failed to roll back cache decrement after ledger failure")
		}
		if errors.Is(err, ErrSkuNotFound) || errors.Is(err, ErrInsufficientStock) {
			metrics.ReserveAttempts.WithLabelValues("insufficient").Inc()
			return false, nil
		}
		metrics.ReserveAttempts.WithLabelValues("error").Inc()
		return false, err
	}

	metrics.ReserveAttempts.WithLabelValues("success").Inc()
	return true, nil
}

// ConfirmOrder 把一个订单的全部预占转成永久扣减，支付事件消费方的入口。
// 账本已有 stock-out 流水的行视为已确认直接跳过，剩余行经 BatchApply
// 一次落账。返回本次真正完成扣减的 SKU，调用方据此累计销量，
// 事件重放不会重复累计。
func (e *Engine) ConfirmOrder(ctx context.Context, orderNo string, lines []Line) ([]uint64, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.ConfirmOrder", trace.WithAttributes(
		attribute.String("order.no", orderNo),
		attribute.Int("lines", len(lines)),
	))
	defer span.End()

	muts := make([]Mutation, 0, len(lines))
	applied := make([]uint64, 0, len(lines))
	for _, ln := range lines {
		done, err := e.ledger.HasChange(ctx, ln.SkuID, orderNo, ChangeStockOut)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if done {
			span.AddEvent("already confirmed, no-op", trace.WithAttributes(
				attribute.Int64("sku.id", int64(ln.SkuID))))
			continue
		}
		muts = append(muts, Mutation{SkuID: ln.SkuID, Qty: ln.Qty, Type: ChangeStockOut, OrderNo: orderNo})
		applied = append(applied, ln.SkuID)
	}
	if len(muts) == 0 {
		return nil, nil
	}

	if err := e.BatchApply(ctx, muts); err != nil {
		span.SetStatus(codes.Error, "ledger confirm failed")
		if errors.Is(err, ErrSkuNotFound) || errors.Is(err, ErrInsufficientStock) {
			// 台账拒绝确认说明预占丢失, 重试无意义, 只能人工核对
			logger.Ctx(ctx).Error().Err(err).Str("order_no", orderNo).
				Msg("支付后确认扣减被台账拒绝, 需人工核对")
			return nil, nil
		}
		return nil, err
	}

	// 库存已真实扣减，缓存不回补，只清掉预占标记
	for _, skuID := range applied {
		if err := e.cache.DropReservation(ctx, skuID, orderNo); err != nil {
			logger.Ctx(ctx).Printf("WARN: failed to drop reservation marker sku=%d order=%s: %v", skuID, orderNo, err)
		}
	}
	return applied, nil
}

// ReleaseOrder 反向撤销一个订单的全部预占：删标记、缓存数量加回、
// 账本 locked_stock 扣回，主动取消和兜底扫描共用。已释放或已确认的行
// 跳过，剩余行经 BatchApply 一次落账。标记已自然过期时缓存不再加回
//（过期即缓存侧的最后释放手段），账本照常释放。
func (e *Engine) ReleaseOrder(ctx context.Context, orderNo string, lines []Line) error {
	ctx, span := e.tracer.Start(ctx, "inventory.ReleaseOrder", trace.WithAttributes(
		attribute.String("order.no", orderNo),
		attribute.Int("lines", len(lines)),
	))
	defer span.End()

	muts := make([]Mutation, 0, len(lines))
	for _, ln := range lines {
		settled, err := e.ledger.HasChange(ctx, ln.SkuID, orderNo, ChangeOrderRelease, ChangeStockOut)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if settled {
			span.AddEvent("already released or confirmed, no-op", trace.WithAttributes(
				attribute.Int64("sku.id", int64(ln.SkuID))))
			continue
		}
		restored, err := e.cache.CancelReserve(ctx, ln.SkuID, ln.Qty, orderNo)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if !restored {
			span.AddEvent("reservation marker already expired", trace.WithAttributes(
				attribute.Int64("sku.id", int64(ln.SkuID))))
		}
		muts = append(muts, Mutation{SkuID: ln.SkuID, Qty: ln.Qty, Type: ChangeOrderRelease, OrderNo: orderNo})
	}
	if len(muts) == 0 {
		return nil
	}

	if err := e.BatchApply(ctx, muts); err != nil {
		span.SetStatus(codes.Error, "ledger release failed")
		if errors.Is(err, ErrSkuNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// BatchApply 把一批变更交给账本按 SKU 归并落账。
// ConfirmOrder 和 ReleaseOrder 的账本写都从这里走；缓存侧不在这里动，
// confirm 不需要动缓存，release 的缓存回补在归并前完成。
func (e *Engine) BatchApply(ctx context.Context, muts []Mutation) error {
	ctx, span := e.tracer.Start(ctx, "inventory.BatchApply", trace.WithAttributes(
		attribute.Int("mutations", len(muts)),
	))
	defer span.End()

	if err := e.ledger.ApplyBatch(ctx, muts); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Available 返回缓存中的可售数量，缓存缺失时从账本懒加载。
func (e *Engine) Available(ctx context.Context, skuID uint64) (int, error) {
	qty, ok, err := e.cache.GetStock(ctx, skuID)
	if err != nil {
		return 0, err
	}
	if ok {
		return qty, nil
	}
	if _, err := e.warmCache(ctx, skuID); err != nil {
		return 0, err
	}
	sku, err := e.ledger.GetSku(ctx, skuID)
	if err != nil {
		return 0, err
	}
	return sku.Available(), nil
}

func (e *Engine) warmCache(ctx context.Context, skuID uint64) (bool, error) {
	sku, err := e.ledger.GetSku(ctx, skuID)
	if err != nil {
		if errors.Is(err, ErrSkuNotFound) {
			return false, nil
		}
		return false, err
	}
	// SET NX：并发懒加载时先写者生效，避免覆盖已被扣减的值
	if err := e.cache.InitStock(ctx, skuID, sku.Available()); err != nil {
		return false, err
	}
	return true, nil
}
