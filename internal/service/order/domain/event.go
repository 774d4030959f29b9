// internal/service/order/domain/event.go
package domain

import "time"

// PaidItem 支付成功事件中的单个订单行
type PaidItem struct {
	ProductID uint64 `json:"product_id"`
	SkuID     uint64 `json:"sku_id"`
	Quantity  int    `json:"quantity"`
}

// OrderPaidEvent 支付成功后发布, 消费侧完成库存扣减确认与销量累计
type OrderPaidEvent struct {
	OrderID string     `json:"order_id"`
	OrderNo string     `json:"order_no"`
	UserID  uint64     `json:"user_id"`
	Items   []PaidItem `json:"items"`
	PaidAt  time.Time  `json:"paid_at"`
}

// TimeoutCheckEvent 支付超时检查事件, 由延迟队列在支付窗口到期后投递
type TimeoutCheckEvent struct {
	OrderNo   string    `json:"order_no"`
	CreatedAt time.Time `json:"created_at"`
}
