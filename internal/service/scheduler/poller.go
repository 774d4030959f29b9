// internal/service/scheduler/poller.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/logger"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/pkg/mq"
	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/infrastructure"
)

// DelayPoller 消费延迟主题, 等到消息的到期时间后再搬运到真实业务主题。
// 延迟主题内所有消息延迟时长相同, 队头即最早到期, 阻塞等待队头是安全的。
type DelayPoller struct {
	reader  *kafka.Reader
	brokers []string
	clock   clockwork.Clock
	tracer  trace.Tracer

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewDelayPoller(brokers []string, groupID string, clock clockwork.Clock, tracer trace.Tracer) *DelayPoller {
	return &DelayPoller{
		reader:  mq.NewKafkaReader(brokers, infrastructure.DelayTopic, groupID),
		brokers: brokers,
		clock:   clock,
		tracer:  tracer,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *DelayPoller) Run(ctx context.Context) {
	logger.Ctx(ctx).Printf("INFO: delay poller started on topic %s", infrastructure.DelayTopic)
	defer p.reader.Close()
	defer p.closeWriters()

	for {
		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Ctx(ctx).Printf("INFO: delay poller shutting down")
				return
			}
			logger.Ctx(ctx).Printf("WARN: fetch delay message failed: %v", err)
			p.clock.Sleep(time.Second)
			continue
		}
		p.handle(ctx, msg)
	}
}

func (p *DelayPoller) handle(parentCtx context.Context, msg kafka.Message) {
	msgCtx := mq.ExtractTraceContext(parentCtx, msg.Headers)
	ctx, span := p.tracer.Start(msgCtx, "scheduler.DeliverDelayed", trace.WithAttributes(
		attribute.String("msg.key", string(msg.Key)),
	))
	defer span.End()

	realTopic := headerValue(msg.Headers, infrastructure.HeaderRealTopic)
	if realTopic == "" {
		logger.Ctx(ctx).Error().Str("key", string(msg.Key)).Msg("延迟消息缺少 real-topic 头, 跳过")
		p.commit(ctx, msg)
		return
	}

	deliverAt, err := time.Parse(time.RFC3339Nano, headerValue(msg.Headers, infrastructure.HeaderDeliverAt))
	if err != nil {
		// 到期时间缺失或损坏时退化为立即投递, 消费侧状态检查兜底
		logger.Ctx(ctx).Printf("WARN: bad deliver-at header key=%s, delivering immediately: %v", msg.Key, err)
		deliverAt = p.clock.Now()
	}
	span.SetAttributes(attribute.String("deliver.at", deliverAt.Format(time.DateTime)))

	if wait := deliverAt.Sub(p.clock.Now()); wait > 0 {
		select {
		case <-parentCtx.Done():
			return
		case <-p.clock.After(wait):
		}
	}

	out := kafka.Message{Key: msg.Key, Value: msg.Value, Headers: msg.Headers}
	if err := p.writer(realTopic).WriteMessages(ctx, out); err != nil {
		// 不提交 offset, 重启或重平衡后重投; 兜底扫描也会捕获
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish to real topic failed")
		logger.Ctx(ctx).Error().Err(err).Str("topic", realTopic).Msg("延迟消息投递失败")
		return
	}
	p.commit(ctx, msg)
	span.AddEvent("delivered", trace.WithAttributes(attribute.String("real.topic", realTopic)))
}

func (p *DelayPoller) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[topic]
	if !ok {
		w = mq.NewKafkaWriter(p.brokers, topic)
		p.writers[topic] = w
	}
	return w
}

func (p *DelayPoller) commit(ctx context.Context, msg kafka.Message) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		logger.Ctx(ctx).Printf("WARN: commit delay message offset failed: %v", err)
	}
}

func (p *DelayPoller) closeWriters() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.writers {
		w.Close()
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
