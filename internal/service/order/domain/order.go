// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Order 是订单聚合的根实体
type Order struct {
	ID             string
	OrderNo        string
	UserID         uint64
	Status         Status
	PaymentStatus  PaymentStatus
	TotalAmount    int64 // 商品总价 (分)
	DiscountAmount int64 // 优惠金额 (分)
	PaymentAmount  int64 // 应付金额 (分)
	PromotionID    *uint64
	Address        AddressSnapshot
	Items          []OrderItem
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderItem 订单行, 商品信息在下单时刻快照, 不随商品后续变更
type OrderItem struct {
	ID          uint64
	OrderID     string
	ProductID   uint64
	SkuID       uint64
	ProductName string
	MainImage   string
	SkuSpec     string
	UnitPrice   int64
	Quantity    int
}

// AddressSnapshot 收货地址快照
type AddressSnapshot struct {
	ReceiverName  string
	ReceiverPhone string
	Province      string
	City          string
	District      string
	Detail        string
}

// NewOrderNo 生成订单号: 时间戳 + 用户ID后三位 + 随机数
// 并非全局严格唯一, 依赖数据库唯一索引兜底
func NewOrderNo(now time.Time, userID uint64) string {
	return fmt.Sprintf("%s%03d%06d", now.Format("20060102150405"), userID%1000, rand.IntN(1000000))
}

// Pay 将订单标记为已支付, 只有待支付且未支付的订单可以流转
func (o *Order) Pay(now time.Time) error {
	if o.Status != StatusPendingPayment || o.PaymentStatus == PaymentPaid {
		return ErrStatusConflict
	}
	o.Status = StatusPendingShipment
	o.PaymentStatus = PaymentPaid
	o.PaidAt = &now
	o.UpdatedAt = now
	return nil
}

// Cancel 取消订单, 只允许从待支付状态取消
func (o *Order) Cancel(now time.Time) error {
	if o.Status != StatusPendingPayment {
		return ErrStatusConflict
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

// Ship 发货
func (o *Order) Ship(now time.Time) error {
	if o.Status != StatusPendingShipment {
		return ErrStatusConflict
	}
	o.Status = StatusShipped
	o.UpdatedAt = now
	return nil
}

// Complete 完成订单 (确认收货或超时自动完成)
func (o *Order) Complete(now time.Time) error {
	if o.Status != StatusPendingShipment && o.Status != StatusShipped {
		return ErrStatusConflict
	}
	o.Status = StatusCompleted
	o.UpdatedAt = now
	return nil
}
