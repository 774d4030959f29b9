// internal/service/order/infrastructure/timeout_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/mq"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
)

// TimeoutCanceller 是超时检查事件消费侧的入站端口。
type TimeoutCanceller interface {
	CancelExpired(ctx context.Context, orderNo string) error
}

// TimeoutEventConsumer 消费支付超时检查事件。取消是幂等的,
// 单条处理失败只记录并提交, 漏掉的订单由兜底扫描取消。
type TimeoutEventConsumer struct {
	reader    *kafka.Reader
	canceller TimeoutCanceller
}

func NewTimeoutEventConsumer(brokers []string, groupID string, canceller TimeoutCanceller) *TimeoutEventConsumer {
	return &TimeoutEventConsumer{
		reader:    mq.NewKafkaReader(brokers, TimeoutTopic, groupID),
		canceller: canceller,
	}
}

func (c *TimeoutEventConsumer) Start(ctx context.Context) {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Printf("WARN: fetch timeout event failed: %v", err)
			time.Sleep(time.Second)
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)
		var evt domain.TimeoutCheckEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Msg("超时事件反序列化失败, 跳过")
		} else if err := c.canceller.CancelExpired(msgCtx, evt.OrderNo); err != nil {
			logger.Ctx(msgCtx).Printf("WARN: cancel expired order=%s failed, sweep will retry: %v", evt.OrderNo, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Printf("WARN: commit timeout event offset failed: %v", err)
		}
	}
}
