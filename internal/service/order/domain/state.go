// internal/service/order/domain/state.go
package domain

// Status 定义了订单的生命周期状态
type Status string

const (
	StatusPendingPayment  Status = "PENDING_PAYMENT"  // 等待用户支付
	StatusPendingShipment Status = "PENDING_SHIPMENT" // 已支付，等待发货
	StatusShipped         Status = "SHIPPED"          // 已发货
	StatusCompleted       Status = "COMPLETED"        // 已完成 (确认收货或超时自动完成)
	StatusCancelled       Status = "CANCELLED"        // 已取消 (用户主动或支付超时)
)

// Terminal 终态订单不再流转
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentStatus 支付状态, 与订单状态分开记录
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)
