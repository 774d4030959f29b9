package port

import (
	"context"

	"github.com/Aru0077/shop-service-mysql-sub000/internal/service/order/domain"
)

// PaidProducer 支付成功事件的出站端口。
type PaidProducer interface {
	PublishOrderPaid(ctx context.Context, evt *domain.OrderPaidEvent) error
}
