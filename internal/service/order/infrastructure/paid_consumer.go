// internal/service/order/infrastructure/paid_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/metrics"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/mq"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
)

// PaidApplier 是支付事件消费侧的入站端口。
type PaidApplier interface {
	ApplyPaidEvent(ctx context.Context, evt *domain.OrderPaidEvent) error
}

// PaidEventConsumer 消费支付成功事件, 驱动库存确认与销量累计。
// 处理失败带退避重试若干次, 重试耗尽后提交并留下告警日志,
// 避免一条坏消息堵死整个分区。
type PaidEventConsumer struct {
	reader  *kafka.Reader
	applier PaidApplier
}

func NewPaidEventConsumer(brokers []string, groupID string, applier PaidApplier) *PaidEventConsumer {
	return &PaidEventConsumer{
		reader:  mq.NewKafkaReader(brokers, PaidTopic, groupID),
		applier: applier,
	}
}

func (c *PaidEventConsumer) Start(ctx context.Context) {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Printf("WARN: fetch paid event failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		var evt domain.OrderPaidEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Msg("支付事件反序列化失败, 跳过")
			c.commit(ctx, msg)
			continue
		}

		c.applyWithRetry(msgCtx, &evt)
		c.commit(ctx, msg)
	}
}

func (c *PaidEventConsumer) applyWithRetry(ctx context.Context, evt *domain.OrderPaidEvent) {
	backoff := time.Second
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = c.applier.ApplyPaidEvent(ctx, evt); err == nil {
			return
		}
		metrics.PaidFanoutRetries.Inc()
		logger.Ctx(ctx).Printf("WARN: apply paid event failed order=%s attempt=%d: %v", evt.OrderNo, attempt+1, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	logger.Ctx(ctx).Error().Err(err).Str("order_no", evt.OrderNo).
		Msg("支付事件重试耗尽, 库存确认可能未完成, 需人工核对")
}

func (c *PaidEventConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(ctx).Printf("WARN: commit paid event offset failed: %v", err)
	}
}
