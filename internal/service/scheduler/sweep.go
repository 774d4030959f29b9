// internal/service/scheduler/sweep.go
package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
)

const sweepBatchSize = 200

// Sweepable 是兜底扫描驱动的订单操作。
type Sweepable interface {
	SweepExpiredOrders(ctx context.Context, batch int) (int, error)
	SweepAutoComplete(ctx context.Context, batch int) (int, error)
}

// Leader 单实例执行的门禁, 多副本部署时只有持有者干活。
type Leader interface {
	IsLeader() bool
}

// Sweeper 周期性扫描超时未支付和超期未收货的订单。
// 延迟队列是主要的取消路径, 扫描只兜住队列丢失或投递失败的漏网订单。
type Sweeper struct {
	svc      Sweepable
	leader   Leader
	clock    clockwork.Clock
	interval time.Duration
}

func NewSweeper(svc Sweepable, leader Leader, clock clockwork.Clock, interval time.Duration) *Sweeper {
	return &Sweeper{svc: svc, leader: leader, clock: clock, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	logger.Ctx(ctx).Printf("INFO: order sweeper started, interval=%v", s.interval)
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Ctx(ctx).Printf("INFO: order sweeper shutting down")
			return
		case <-ticker.Chan():
			if !s.leader.IsLeader() {
				continue
			}
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	if n, err := s.svc.SweepExpiredOrders(ctx, sweepBatchSize); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("超时订单扫描失败")
	} else if n > 0 {
		logger.Ctx(ctx).Info().Int("cancelled", n).Msg("兜底扫描取消超时订单")
	}

	if n, err := s.svc.SweepAutoComplete(ctx, sweepBatchSize); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("自动完成扫描失败")
	} else if n > 0 {
		logger.Ctx(ctx).Info().Int("completed", n).Msg("超期订单自动完成")
	}
}
