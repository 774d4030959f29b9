// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 订单核心的关键指标。补偿失败和审计修正必须可观测，
// 它们是人工介入的唯一信号来源。
var (
	ReserveAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_stock_reserve_attempts_total",
		Help: "Stock reservation attempts by result (success|insufficient|error).",
	}, []string{"result"})

	CompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_order_compensation_failures_total",
		Help: "Reservation release failures during order compensation; requires manual attention.",
	})

	SweepCancellations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_order_sweep_cancellations_total",
		Help: "Orders cancelled by the periodic payment-timeout sweep.",
	})

	AuditCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_stock_audit_corrections_total",
		Help: "Cache/ledger divergences corrected by the stock auditor.",
	})

	LockDenials = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_lock_denials_total",
		Help: "Order operations rejected because the create/state lock was held (normal contention signal).",
	})

	PaidFanoutRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shop_order_paid_fanout_retries_total",
		Help: "Retries of the post-payment confirmation fan-out.",
	})
)
