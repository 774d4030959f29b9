// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"
)

// PaymentLog 支付流水, 以 (OrderID, TransactionID) 保证支付回调幂等
type PaymentLog struct {
	OrderID       string
	OrderNo       string
	UserID        uint64
	PaymentType   string
	TransactionID string
	Amount        int64
	CreatedAt     time.Time
}

// CartItem 购物车条目
type CartItem struct {
	ID        uint64
	UserID    uint64
	ProductID uint64
	SkuID     uint64
	Quantity  int
}

// SaleSku 下单校验所需的在售商品视图
type SaleSku struct {
	SkuID       uint64
	ProductID   uint64
	ProductName string
	MainImage   string
	SkuSpec     string
	Price       int64
	OnSale      bool
}

// OrderRepository 订单聚合的持久化端口
type OrderRepository interface {
	// CreateWithItems 在一个事务里写入订单与全部订单行
	CreateWithItems(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByOrderNo(ctx context.Context, orderNo string) (*Order, error)
	// Transition 带状态前置条件的更新, 前置状态不匹配时返回 ErrStatusConflict
	Transition(ctx context.Context, order *Order, from Status) error
	// MarkPaid 在一个事务里写支付流水并流转订单状态
	MarkPaid(ctx context.Context, order *Order, log *PaymentLog) error
	HasPaymentLog(ctx context.Context, orderID, transactionID string) (bool, error)
	// FindPendingOlderThan 兜底扫描: 创建时间早于 cutoff 且仍处于待支付的订单
	FindPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
	// FindPaidUndeliveredOlderThan 超时自动完成扫描: 支付时间早于 cutoff 且未完成的订单
	FindPaidUndeliveredOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
	IncrProductSales(ctx context.Context, productID uint64, qty int) error
}

// CheckoutReader 下单校验所需的商品/购物车/地址读取端口
type CheckoutReader interface {
	// GetAddress 校验归属, 地址不属于该用户时返回 ErrAddressNotFound
	GetAddress(ctx context.Context, addressID, userID uint64) (*AddressSnapshot, error)
	GetCartItems(ctx context.Context, userID uint64, ids []uint64) ([]CartItem, error)
	DeleteCartItems(ctx context.Context, userID uint64, ids []uint64) error
	GetSaleSkus(ctx context.Context, skuIDs []uint64) (map[uint64]SaleSku, error)
}
