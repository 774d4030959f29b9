// internal/service/auditor/auditor.go
package auditor

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/metrics"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/inventory"
)

const pageSize = 500

// Leader 单实例执行的门禁。
type Leader interface {
	IsLeader() bool
}

// Auditor 周期性对账: 逐页遍历账本, 把缓存的可售数量和账本的
// (stock - locked_stock) 对齐。账本是唯一权威, 分歧一律以账本为准,
// 每次修正都落一条审计流水。
type Auditor struct {
	cache    inventory.StockCache
	ledger   inventory.StockLedger
	leader   Leader
	clock    clockwork.Clock
	tracer   trace.Tracer
	interval time.Duration
}

func New(cache inventory.StockCache, ledger inventory.StockLedger, leader Leader,
	clock clockwork.Clock, tracer trace.Tracer, interval time.Duration) *Auditor {
	return &Auditor{cache: cache, ledger: ledger, leader: leader,
		clock: clock, tracer: tracer, interval: interval}
}

func (a *Auditor) Run(ctx context.Context) {
	logger.Ctx(ctx).Printf("INFO: stock auditor started, interval=%v", a.interval)
	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Printf("INFO: stock auditor shutting down")
			return
		case <-ticker.Chan():
			if !a.leader.IsLeader() {
				continue
			}
			if err := a.RunOnce(ctx); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("库存对账执行失败")
			}
		}
	}
}

// RunOnce 执行一轮完整对账, 返回遍历中断的错误。
// 单个 SKU 的修正失败只记录, 不中断整轮。
func (a *Auditor) RunOnce(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "auditor.RunOnce")
	defer span.End()

	var afterSkuID uint64
	checked, corrected := 0, 0
	for {
		skus, err := a.ledger.ListSkus(ctx, afterSkuID, pageSize)
		if err != nil {
			span.RecordError(err)
			return err
		}
		if len(skus) == 0 {
			break
		}
		for i := range skus {
			checked++
			if a.auditOne(ctx, &skus[i]) {
				corrected++
			}
		}
		afterSkuID = skus[len(skus)-1].SkuID
	}

	span.SetAttributes(
		attribute.Int("skus.checked", checked),
		attribute.Int("skus.corrected", corrected),
	)
	if corrected > 0 {
		logger.Ctx(ctx).Info().Int("checked", checked).Int("corrected", corrected).Msg("库存对账完成, 存在分歧")
	}
	return nil
}

// auditOne 对齐单个 SKU, 返回是否做了修正。
func (a *Auditor) auditOne(ctx context.Context, sku *inventory.SkuStock) bool {
	want := sku.Available()
	got, ok, err := a.cache.GetStock(ctx, sku.SkuID)
	if err != nil {
		logger.Ctx(ctx).Printf("WARN: audit read cache failed sku=%d: %v", sku.SkuID, err)
		return false
	}
	if !ok {
		// 缓存缺失不算分歧, 补一份即可
		if err := a.cache.InitStock(ctx, sku.SkuID, want); err != nil {
			logger.Ctx(ctx).Printf("WARN: audit init cache failed sku=%d: %v", sku.SkuID, err)
		}
		return false
	}
	if got == want {
		return false
	}

	if err := a.ledger.AuditAdjust(ctx, sku.SkuID, got, want, "audit: cache diverged from ledger"); err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("sku_id", sku.SkuID).Msg("审计流水写入失败, 跳过本次修正")
		return false
	}
	if err := a.cache.SetStock(ctx, sku.SkuID, want); err != nil {
		logger.Ctx(ctx).Error().Err(err).Uint64("sku_id", sku.SkuID).Msg("缓存修正写入失败")
		return false
	}
	metrics.AuditCorrections.Inc()
	logger.Ctx(ctx).Info().
		Uint64("sku_id", sku.SkuID).
		Int("cache_qty", got).
		Int("ledger_qty", want).
		Msg("库存缓存与账本分歧已修正")
	return true
}
