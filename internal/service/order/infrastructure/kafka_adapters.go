// internal/service/order/infrastructure/kafka_adapters.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/mq"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
)

const (
	// DelayTopic 延迟队列主题, 消息先进这里, 到期后由轮询器搬运
	DelayTopic = "order-cancel-delay"
	// TimeoutTopic 真实业务主题, 消费侧执行支付超时取消
	TimeoutTopic = "order-timeout-check"
	// PaidTopic 支付成功事件主题
	PaidTopic = "order-paid"

	// HeaderRealTopic / HeaderDeliverAt 延迟消息的路由与到期时间
	HeaderRealTopic = "real-topic"
	HeaderDeliverAt = "deliver-at"
)

// SchedulerKafkaAdapter 以 Kafka 延迟主题实现 port.DelayScheduler。
type SchedulerKafkaAdapter struct {
	delayWriter *kafka.Writer
}

func NewSchedulerKafkaAdapter(brokers []string) *SchedulerKafkaAdapter {
	return &SchedulerKafkaAdapter{delayWriter: mq.NewKafkaWriter(brokers, DelayTopic)}
}

func (a *SchedulerKafkaAdapter) SchedulePaymentTimeout(ctx context.Context, orderNo string, deadline time.Time) error {
	evt := domain.TimeoutCheckEvent{OrderNo: orderNo, CreatedAt: time.Now()}
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal timeout event")
	}
	msg := kafka.Message{
		Key:   []byte(orderNo),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderRealTopic, Value: []byte(TimeoutTopic)},
			{Key: HeaderDeliverAt, Value: []byte(deadline.UTC().Format(time.RFC3339Nano))},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)
	return errors.Wrap(a.delayWriter.WriteMessages(ctx, msg), "write delay message")
}

// CancelPaymentTimeout 延迟主题不支持按键撤销,
// 到期消息照常投递, 由消费侧的状态检查丢弃。
func (a *SchedulerKafkaAdapter) CancelPaymentTimeout(ctx context.Context, orderNo string) error {
	return nil
}

func (a *SchedulerKafkaAdapter) Close() error {
	return a.delayWriter.Close()
}

// PaidKafkaProducer 以 Kafka 实现 port.PaidProducer。
type PaidKafkaProducer struct {
	writer *kafka.Writer
}

func NewPaidKafkaProducer(brokers []string) *PaidKafkaProducer {
	return &PaidKafkaProducer{writer: mq.NewKafkaWriter(brokers, PaidTopic)}
}

func (p *PaidKafkaProducer) PublishOrderPaid(ctx context.Context, evt *domain.OrderPaidEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal paid event")
	}
	msg := kafka.Message{Key: []byte(evt.OrderNo), Value: payload}
	mq.InjectTraceContext(ctx, &msg.Headers)
	return errors.Wrap(p.writer.WriteMessages(ctx, msg), "write paid event")
}

func (p *PaidKafkaProducer) Close() error {
	return p.writer.Close()
}
