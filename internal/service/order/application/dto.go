// internal/service/order/application/dto.go
package application

import "time"

// CreateOrderCommand 购物车下单请求
type CreateOrderCommand struct {
	UserID      uint64
	AddressID   uint64
	CartItemIDs []uint64
}

// QuickBuyCommand 立即购买请求, 不经过购物车
type QuickBuyCommand struct {
	UserID    uint64
	AddressID uint64
	ProductID uint64
	SkuID     uint64
	Quantity  int
}

// PayOrderCommand 支付回调请求
type PayOrderCommand struct {
	OrderID       string
	UserID        uint64
	PaymentType   string
	TransactionID string
}

// OrderSummary 下单结果
type OrderSummary struct {
	OrderID        string `json:"order_id"`
	OrderNo        string `json:"order_no"`
	Status         string `json:"status"`
	TotalAmount    int64  `json:"total_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	PaymentAmount  int64  `json:"payment_amount"`
	TimeoutSeconds int64  `json:"timeout_seconds"`
}

// PaymentResult 支付结果
type PaymentResult struct {
	OrderID string    `json:"order_id"`
	Status  string    `json:"status"`
	PaidAt  time.Time `json:"paid_at"`
}
